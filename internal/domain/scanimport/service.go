package scanimport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

const (
	MaxImages     = 10
	MaxImageBytes = 10 << 20
)

var ErrInvalidUpload = errors.New("invalid scan upload")

// EventWriter persists accepted entries. diary.Service satisfies it.
type EventWriter interface {
	CreateMany(ctx context.Context, sess auth.Session, patientID uuid.UUID, events []*diary.Event) error
}

type Service struct {
	extractor Extractor
	events    EventWriter
	logger    zerolog.Logger
}

// NewService wires the review flow. A nil extractor leaves Extract
// returning ErrUnavailable while Accept keeps working.
func NewService(extractor Extractor, events EventWriter, logger zerolog.Logger) *Service {
	return &Service{
		extractor: extractor,
		events:    events,
		logger:    logger.With().Str("component", "scanimport").Logger(),
	}
}

func checkImages(images []Image) error {
	if len(images) == 0 {
		return fmt.Errorf("%w: at least one image is required", ErrInvalidUpload)
	}
	if len(images) > MaxImages {
		return fmt.Errorf("%w: at most %d images per upload", ErrInvalidUpload, MaxImages)
	}
	for _, img := range images {
		if len(img.Data) > MaxImageBytes {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidUpload, img.Filename, MaxImageBytes)
		}
		ct := img.ContentType
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(img.Data)
		}
		if !strings.HasPrefix(ct, "image/") {
			return fmt.Errorf("%w: %s is not an image", ErrInvalidUpload, img.Filename)
		}
	}
	return nil
}

// Extract reads candidate entries from the pages. Nothing is stored; every
// candidate comes back graded and annotated with validation issues.
func (s *Service) Extract(ctx context.Context, sess auth.Session, patientID uuid.UUID, images []Image) ([]Candidate, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}
	if err := checkImages(images); err != nil {
		return nil, err
	}
	if s.extractor == nil {
		return nil, ErrUnavailable
	}

	candidates, err := s.extractor.Extract(ctx, images)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("scan extraction failed")
		return nil, err
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	flagged := 0
	for i := range candidates {
		candidates[i].review(patientID)
		if len(candidates[i].Issues) > 0 {
			flagged++
		}
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int("images", len(images)).
		Int("candidates", len(candidates)).
		Int("flagged", flagged).
		Msg("scan extracted")
	return candidates, nil
}

// Accept stores reviewed candidates as scanned events in one batch.
func (s *Service) Accept(ctx context.Context, sess auth.Session, patientID uuid.UUID, candidates []Candidate) ([]*diary.Event, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no entries to accept", ErrInvalidUpload)
	}
	events := make([]*diary.Event, len(candidates))
	for i := range candidates {
		events[i] = candidates[i].Event(patientID)
	}
	if err := s.events.CreateMany(ctx, sess, patientID, events); err != nil {
		return nil, err
	}
	return events, nil
}
