package blocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type blockKey struct {
	patient uuid.UUID
	start   time.Time
}

// MemoryRepository keeps blocks in process for tests and the offline
// analyze command.
type MemoryRepository struct {
	mu      sync.RWMutex
	lock    sync.Mutex
	blocks  map[blockKey]*RecordingBlock
	upserts int
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{blocks: make(map[blockKey]*RecordingBlock), now: time.Now}
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*RecordingBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*RecordingBlock
	for k, b := range m.blocks {
		if k.patient == patientID {
			cp := *b
			items = append(items, &cp)
		}
	}
	SortNewestFirst(items)
	return items, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, b *RecordingBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	key := blockKey{b.PatientID, b.WindowStart}
	ts := m.now().UTC()
	if cur, ok := m.blocks[key]; ok {
		b.ID, b.WindowEnd, b.CreatedAt = cur.ID, cur.WindowEnd, cur.CreatedAt
	} else {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		b.CreatedAt = ts
	}
	b.UpdatedAt = ts
	cp := *b
	m.blocks[key] = &cp
	return nil
}

func (m *MemoryRepository) Locked(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return fn(ctx)
}

// Upserts returns how many writes the repository has accepted.
func (m *MemoryRepository) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}
