package diary

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the Event Store Accessor. List returns events ordered by
// (occurred_on, occurred_at).
type Repository interface {
	Create(ctx context.Context, e *Event) error
	CreateMany(ctx context.Context, events []*Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter, limit, offset int) ([]*Event, int, error)
	AllByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]*Event, error)
}
