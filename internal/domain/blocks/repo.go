package blocks

import (
	"context"

	"github.com/google/uuid"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

// Repository persists recording blocks.
type Repository interface {
	// ListByPatient returns blocks ordered by window start, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*RecordingBlock, error)
	// Upsert inserts b or updates the row with the same (patient, window start).
	// Window boundaries of an existing row are left untouched.
	Upsert(ctx context.Context, b *RecordingBlock) error
	// Locked runs fn while holding the patient's segmentation lock. Reads
	// and writes made with the derived context see one consistent snapshot.
	Locked(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error
}

// EventSource is the read side of the diary store used for segmentation.
type EventSource interface {
	AllByPatient(ctx context.Context, patientID uuid.UUID, f diary.Filter) ([]*diary.Event, error)
}
