package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

// -- Mock Profile Repository --

type mockProfileRepo struct {
	store map[uuid.UUID]*Profile
	err   error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{store: make(map[uuid.UUID]*Profile)}
}

func (m *mockProfileRepo) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.store[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (m *mockProfileRepo) UpsertProfile(_ context.Context, p *Profile) error {
	m.store[p.PatientID] = p
	return nil
}

type failingEvents struct{}

func (failingEvents) AllByPatient(context.Context, uuid.UUID, diary.Filter) ([]*diary.Event, error) {
	return nil, errors.New("connection refused")
}

var clinician = auth.Session{UserID: "dr", Roles: []string{auth.RolePhysician}}

func newTestService() (*Service, *diary.MemoryRepository, *mockProfileRepo) {
	events := diary.NewMemoryRepository()
	profiles := newMockProfileRepo()
	return NewService(events, profiles, DefaultDayWindow, zerolog.Nop()), events, profiles
}

func seed(t *testing.T, repo *diary.MemoryRepository, pid uuid.UUID, events ...*diary.Event) {
	t.Helper()
	for _, e := range events {
		e.PatientID = pid
		e.Normalize()
		if err := e.Validate(); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	repo.CreateMany(context.Background(), events)
}

func nocturnalDiary() []*diary.Event {
	var events []*diary.Event
	for d := 0; d < 2; d++ {
		on := fmt.Sprintf("2024-03-%02d", 5+d)
		events = append(events,
			void(on, "09:00", 300), void(on, "14:00", 300),
			void(on, "01:00", 300), void(on, "03:00", 300), void(on, "05:00", 300))
	}
	return events
}

func TestAnalyze_NoData(t *testing.T) {
	svc, _, _ := newTestService()
	res, err := svc.Analyze(context.Background(), clinician, uuid.New(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNoData {
		t.Errorf("expected no_data, got %s", res.Status)
	}
	if len(res.Patterns) != 0 {
		t.Errorf("expected no patterns, got %v", res.Patterns)
	}
}

func TestAnalyze_InsufficientHidesPatterns(t *testing.T) {
	svc, repo, _ := newTestService()
	pid := uuid.New()
	seed(t, repo, pid, void("2024-03-05", "01:00", 100), void("2024-03-05", "02:00", 100), void("2024-03-05", "03:00", 100))
	res, err := svc.Analyze(context.Background(), clinician, pid, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusInsufficient {
		t.Errorf("expected insufficient, got %s", res.Status)
	}
	if len(res.Patterns) != 0 {
		t.Errorf("expected patterns withheld, got %v", names(res.Patterns))
	}
	if res.Stats.NightVoids != 3 {
		t.Errorf("stats should still be computed, got %+v", res.Stats)
	}
}

func TestAnalyze_MaleNocturiaGuidance(t *testing.T) {
	svc, repo, profiles := newTestService()
	pid := uuid.New()
	seed(t, repo, pid, nocturnalDiary()...)
	profiles.store[pid] = &Profile{PatientID: pid, NationalID: "15078512323"}

	res, err := svc.Analyze(context.Background(), clinician, pid, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s", res.Status)
	}
	p := find(res.Patterns, PatternNocturia)
	if p == nil || p.Probability != ProbabilityHigh {
		t.Fatalf("expected high nocturia, got %v", names(res.Patterns))
	}
	if len(res.Guidance) != 1 {
		t.Errorf("expected male guidance, got %+v", res.Guidance)
	}
}

func TestAnalyze_NoProfileNoGuidance(t *testing.T) {
	svc, repo, _ := newTestService()
	pid := uuid.New()
	seed(t, repo, pid, nocturnalDiary()...)
	res, err := svc.Analyze(context.Background(), clinician, pid, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Guidance) != 0 {
		t.Errorf("expected no guidance without a profile, got %+v", res.Guidance)
	}
}

func TestAnalyze_DateRange(t *testing.T) {
	svc, repo, _ := newTestService()
	pid := uuid.New()
	seed(t, repo, pid, nocturnalDiary()...)
	res, _ := svc.Analyze(context.Background(), clinician, pid, Options{From: "2024-03-06", To: "2024-03-06"})
	if res.Stats.TotalVoids != 5 || res.Stats.UniqueDays != 1 {
		t.Errorf("expected one day of data, got %+v", res.Stats)
	}
}

func TestAnalyze_Forbidden(t *testing.T) {
	svc, _, _ := newTestService()
	sess := auth.Session{Roles: []string{auth.RolePatient}, PatientID: uuid.New()}
	_, err := svc.Analyze(context.Background(), sess, uuid.New(), Options{})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAnalyze_StorageError(t *testing.T) {
	svc := NewService(failingEvents{}, newMockProfileRepo(), DefaultDayWindow, zerolog.Nop())
	if _, err := svc.Analyze(context.Background(), clinician, uuid.New(), Options{}); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestAnalyze_ProfileErrorPropagates(t *testing.T) {
	svc, _, profiles := newTestService()
	profiles.err = errors.New("timeout")
	if _, err := svc.Analyze(context.Background(), clinician, uuid.New(), Options{}); err == nil {
		t.Fatal("expected profile error")
	}
}

func TestSaveProfile_RejectsBadChecksum(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.SaveProfile(context.Background(), clinician, &Profile{PatientID: uuid.New(), NationalID: "15078512324"})
	if !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestGetAnalysisHandler(t *testing.T) {
	svc, repo, _ := newTestService()
	pid := uuid.New()
	seed(t, repo, pid, nocturnalDiary()...)
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?audience=clinician", nil)
	req = req.WithContext(auth.WithSession(req.Context(), clinician))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(pid.String())
	if err := h.GetAnalysis(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestGetAnalysisHandler_BadAudience(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?audience=robot", nil)
	req = req.WithContext(auth.WithSession(req.Context(), clinician))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())
	err := h.GetAnalysis(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestProfileHandlers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	pid := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithSession(req.Context(), clinician))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(pid.String())
	err := h.GetProfile(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"display_name":"Ola","national_id":"15078512323"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithSession(req.Context(), clinician))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(pid.String())
	if err := h.PutProfile(c); err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
