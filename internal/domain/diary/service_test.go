package diary

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
)

// -- Mock Publisher --

type mockPublisher struct {
	mu      sync.Mutex
	changes []changefeed.Change
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, c changefeed.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return m.err
}

func newTestService() (*Service, *mockPublisher) {
	pub := &mockPublisher{}
	return NewService(NewMemoryRepository(), pub, zerolog.Nop()), pub
}

var clinician = auth.Session{UserID: "dr", Roles: []string{auth.RolePhysician}}

func patientSession(pid uuid.UUID) auth.Session {
	return auth.Session{UserID: "p", Roles: []string{auth.RolePatient}, PatientID: pid}
}

func newVoid(on, at string, ml int) *Event {
	return &Event{OccurredOn: on, OccurredAt: at, Kind: KindVoid, VolumeMl: &ml}
}

func TestService_CreatePublishesInsert(t *testing.T) {
	svc, pub := newTestService()
	pid := uuid.New()
	e := newVoid("2024-03-05", "08:00", 300)
	if err := svc.Create(context.Background(), clinician, pid, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if e.PatientID != pid {
		t.Errorf("expected patient %s, got %s", pid, e.PatientID)
	}
	if e.Provenance != ProvenanceManual {
		t.Errorf("expected manual provenance, got %q", e.Provenance)
	}
	if len(pub.changes) != 1 || pub.changes[0].Op != changefeed.OpInsert {
		t.Fatalf("expected one insert change, got %+v", pub.changes)
	}
	if len(pub.changes[0].Event) == 0 {
		t.Error("expected event payload on insert")
	}
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	svc, pub := newTestService()
	e := newVoid("2024-03-05", "08:00", -5)
	err := svc.Create(context.Background(), clinician, uuid.New(), e)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if len(pub.changes) != 0 {
		t.Error("expected no change published for rejected write")
	}
}

func TestService_PatientCannotWriteOtherDiary(t *testing.T) {
	svc, _ := newTestService()
	own := uuid.New()
	err := svc.Create(context.Background(), patientSession(own), uuid.New(), newVoid("2024-03-05", "08:00", 200))
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Create(context.Background(), patientSession(own), own, newVoid("2024-03-05", "08:00", 200)); err != nil {
		t.Fatalf("own diary: unexpected error: %v", err)
	}
}

func TestService_CreateManyAllOrNothing(t *testing.T) {
	svc, pub := newTestService()
	pid := uuid.New()
	events := []*Event{
		newVoid("2024-03-05", "08:00", 200),
		newVoid("2024-03-05", "bad", 200),
	}
	if err := svc.CreateMany(context.Background(), clinician, pid, events); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	all, _ := svc.All(context.Background(), clinician, pid, Filter{})
	if len(all) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(all))
	}

	events[1].OccurredAt = "09:00"
	if err := svc.CreateMany(context.Background(), clinician, pid, events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range events {
		if e.ID == uuid.Nil {
			t.Error("expected server-assigned id")
		}
	}
	if len(pub.changes) != 2 {
		t.Errorf("expected 2 changes, got %d", len(pub.changes))
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	svc, pub := newTestService()
	pid := uuid.New()
	e := newVoid("2024-03-05", "08:00", 200)
	svc.Create(context.Background(), clinician, pid, e)

	upd := newVoid("2024-03-05", "08:30", 350)
	upd.ID = e.ID
	if err := svc.Update(context.Background(), clinician, pid, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.Get(context.Background(), clinician, pid, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Volume() != 350 || got.OccurredAt != "08:30" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := svc.Delete(context.Background(), clinician, pid, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), clinician, pid, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	ops := []changefeed.Op{}
	for _, c := range pub.changes {
		ops = append(ops, c.Op)
	}
	want := []changefeed.Op{changefeed.OpInsert, changefeed.OpUpdate, changefeed.OpDelete}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: expected %s, got %s", i, want[i], ops[i])
		}
	}
}

func TestService_GetOtherPatientsEventIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	e := newVoid("2024-03-05", "08:00", 200)
	svc.Create(context.Background(), clinician, uuid.New(), e)
	if _, err := svc.Get(context.Background(), clinician, uuid.New(), e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_PublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub := newTestService()
	pub.err = errors.New("bus down")
	if err := svc.Create(context.Background(), clinician, uuid.New(), newVoid("2024-03-05", "08:00", 200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_ListChronological(t *testing.T) {
	svc, _ := newTestService()
	pid := uuid.New()
	svc.Create(context.Background(), clinician, pid, newVoid("2024-03-06", "07:00", 100))
	svc.Create(context.Background(), clinician, pid, newVoid("2024-03-05", "22:00", 200))
	svc.Create(context.Background(), clinician, pid, newVoid("2024-03-05", "06:00", 300))

	items, total, err := svc.List(context.Background(), clinician, pid, Filter{}, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(items), total)
	}
	if items[0].Volume() != 300 || items[1].Volume() != 200 {
		t.Errorf("unexpected order: %d, %d", items[0].Volume(), items[1].Volume())
	}

	items, _, _ = svc.List(context.Background(), clinician, pid, Filter{From: "2024-03-06"}, 10, 0)
	if len(items) != 1 || items[0].Volume() != 100 {
		t.Errorf("date filter: unexpected result %+v", items)
	}
}
