package diary

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps events in process. The offline analyze command and
// tests use it in place of Postgres.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*Event
	seq    map[uuid.UUID]int
	next   int
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[uuid.UUID]*Event),
		seq:    make(map[uuid.UUID]int),
		now:    time.Now,
	}
}

func (m *MemoryRepository) put(e *Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	ts := m.now().UTC()
	e.CreatedAt, e.UpdatedAt = ts, ts
	cp := *e
	m.events[e.ID] = &cp
	m.next++
	m.seq[e.ID] = m.next
}

func (m *MemoryRepository) Create(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(e)
	return nil
}

func (m *MemoryRepository) CreateMany(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.put(e)
	}
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) Update(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.events[e.ID]
	if !ok {
		return ErrNotFound
	}
	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = m.now().UTC()
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	delete(m.seq, id)
	return nil
}

func (m *MemoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Event, int, error) {
	all, _ := m.AllByPatient(ctx, patientID, f)
	total := len(all)
	if offset >= total {
		return []*Event{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepository) AllByPatient(_ context.Context, patientID uuid.UUID, f Filter) ([]*Event, error) {
	m.mu.RLock()
	var out []*Event
	for _, e := range m.events {
		if e.PatientID == patientID && f.Matches(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	// Map iteration is random; order by insertion first so equal timestamps
	// come back in the order they were written.
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	m.mu.RUnlock()

	SortChronologically(out)
	return out, nil
}
