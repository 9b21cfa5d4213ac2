package diary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
)

// Service is the write boundary for diary events. Every event it stores has
// passed Normalize and Validate, and every successful write is published on
// the change feed.
type Service struct {
	events Repository
	feed   changefeed.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(events Repository, feed changefeed.Publisher, logger zerolog.Logger) *Service {
	if feed == nil {
		feed = changefeed.Nop{}
	}
	return &Service{
		events: events,
		feed:   feed,
		logger: logger.With().Str("component", "diary").Logger(),
		now:    time.Now,
	}
}

func (s *Service) prepare(sess auth.Session, patientID uuid.UUID, e *Event) error {
	if err := sess.Authorize(patientID); err != nil {
		return err
	}
	e.PatientID = patientID
	e.Normalize()
	return e.Validate()
}

func (s *Service) Create(ctx context.Context, sess auth.Session, patientID uuid.UUID, e *Event) error {
	if err := s.prepare(sess, patientID, e); err != nil {
		return err
	}
	if err := s.events.Create(ctx, e); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	s.publish(ctx, changefeed.OpInsert, e)
	return nil
}

// CreateMany stores events atomically: either all are persisted or none.
func (s *Service) CreateMany(ctx context.Context, sess auth.Session, patientID uuid.UUID, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	for i, e := range events {
		if err := s.prepare(sess, patientID, e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	if err := s.events.CreateMany(ctx, events); err != nil {
		return fmt.Errorf("create events: %w", err)
	}
	for _, e := range events {
		s.publish(ctx, changefeed.OpInsert, e)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, sess auth.Session, patientID, id uuid.UUID) (*Event, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.PatientID != patientID {
		return nil, ErrNotFound
	}
	return e, nil
}

// Update replaces the mutable fields of an existing event. The event must
// belong to patientID.
func (s *Service) Update(ctx context.Context, sess auth.Session, patientID uuid.UUID, e *Event) error {
	existing, err := s.Get(ctx, sess, patientID, e.ID)
	if err != nil {
		return err
	}
	if err := s.prepare(sess, patientID, e); err != nil {
		return err
	}
	e.CreatedAt = existing.CreatedAt
	if err := s.events.Update(ctx, e); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	s.publish(ctx, changefeed.OpUpdate, e)
	return nil
}

func (s *Service) Delete(ctx context.Context, sess auth.Session, patientID, id uuid.UUID) error {
	e, err := s.Get(ctx, sess, patientID, id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.send(ctx, changefeed.Change{
		Op:        changefeed.OpDelete,
		PatientID: e.PatientID,
		EventID:   e.ID,
		At:        s.now().UTC(),
	})
	return nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, patientID uuid.UUID, f Filter, limit, offset int) ([]*Event, int, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, 0, err
	}
	return s.events.ListByPatient(ctx, patientID, f, limit, offset)
}

// All returns every event matching f in chronological order. It is the
// snapshot source for analysis and segmentation.
func (s *Service) All(ctx context.Context, sess auth.Session, patientID uuid.UUID, f Filter) ([]*Event, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}
	return s.events.AllByPatient(ctx, patientID, f)
}

func (s *Service) publish(ctx context.Context, op changefeed.Op, e *Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", e.ID.String()).Msg("encode change")
		return
	}
	s.send(ctx, changefeed.Change{
		Op:        op,
		PatientID: e.PatientID,
		EventID:   e.ID,
		Event:     raw,
		At:        s.now().UTC(),
	})
}

// send logs publish failures; the write itself already succeeded.
func (s *Service) send(ctx context.Context, c changefeed.Change) {
	if err := s.feed.Publish(ctx, c); err != nil {
		s.logger.Warn().Err(err).Str("event_id", c.EventID.String()).Str("op", string(c.Op)).Msg("publish change")
	}
}
