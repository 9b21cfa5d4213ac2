package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

var (
	ErrProfileNotFound = errors.New("patient profile not found")
	ErrInvalidProfile  = errors.New("invalid patient profile")
)

// EventSource supplies the event snapshot an analysis runs over.
type EventSource interface {
	AllByPatient(ctx context.Context, patientID uuid.UUID, f diary.Filter) ([]*diary.Event, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, patientID uuid.UUID) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
}
