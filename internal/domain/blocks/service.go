package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

type Service struct {
	blocks   Repository
	events   EventSource
	duration time.Duration
	window   analysis.DayWindow
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(blocks Repository, events EventSource, duration time.Duration, window analysis.DayWindow, logger zerolog.Logger) *Service {
	return &Service{
		blocks:   blocks,
		events:   events,
		duration: duration,
		window:   window,
		logger:   logger.With().Str("component", "blocks").Logger(),
		now:      time.Now,
	}
}

// wallClock re-expresses t's local reading in UTC, the frame diary events
// and block windows are stored in.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// stored is what the last write recorded for a block.
type stored struct {
	fingerprint string
	status      Status
}

// Segment brings the patient's blocks up to date with the diary and returns
// them newest first. Only blocks whose aggregates or status changed are
// written; running it twice over the same events writes nothing the second
// time.
func (s *Service) Segment(ctx context.Context, sess auth.Session, patientID uuid.UUID) ([]*RecordingBlock, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}

	var result []*RecordingBlock
	err := s.blocks.Locked(ctx, patientID, func(ctx context.Context) error {
		events, err := s.events.AllByPatient(ctx, patientID, diary.Filter{})
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		existing, err := s.blocks.ListByPatient(ctx, patientID)
		if err != nil {
			return fmt.Errorf("load blocks: %w", err)
		}

		previous := make(map[*RecordingBlock]stored, len(existing))
		for _, b := range existing {
			previous[b] = stored{b.Fingerprint, b.Status}
		}

		segmented := Segment(events, existing, Options{
			Duration:  s.duration,
			DayWindow: s.window,
			Now:       wallClock(s.now()),
		})

		var created, updated int
		for _, b := range segmented {
			prev, existed := previous[b]
			if existed && prev.fingerprint == b.Fingerprint && prev.status == b.Status {
				continue
			}
			b.PatientID = patientID
			if err := s.blocks.Upsert(ctx, b); err != nil {
				return fmt.Errorf("save block %s: %w", b.WindowStart.Format(diary.DateLayout), err)
			}
			if existed {
				updated++
			} else {
				created++
			}
		}

		s.logger.Debug().
			Str("patient_id", patientID.String()).
			Int("events", len(events)).
			Int("blocks", len(segmented)).
			Int("created", created).
			Int("updated", updated).
			Msg("segmentation complete")

		result = segmented
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortNewestFirst(result)
	return result, nil
}

// List returns the stored blocks without re-segmenting.
func (s *Service) List(ctx context.Context, sess auth.Session, patientID uuid.UUID) ([]*RecordingBlock, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}
	return s.blocks.ListByPatient(ctx, patientID)
}
