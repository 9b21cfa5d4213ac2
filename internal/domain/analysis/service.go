package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

// Status tells a caller whether findings may be shown.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusNoData       Status = "no_data"
)

type Options struct {
	From     string
	To       string
	Audience Audience
}

// Result is one analysis over a patient's events. Patterns is empty unless
// Status is ok.
type Result struct {
	PatientID   uuid.UUID         `json:"patient_id"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Audience    Audience          `json:"audience"`
	Status      Status            `json:"status"`
	Stats       Stats             `json:"stats"`
	Sufficiency Sufficiency       `json:"sufficiency"`
	DayWindow   DayWindow         `json:"day_window"`
	Patterns    []ClinicalPattern `json:"patterns"`
	Guidance    []Guidance        `json:"guidance"`
	GeneratedAt time.Time         `json:"generated_at"`

	Events []*diary.Event `json:"-"`
}

// Run computes a Result from an in-memory snapshot. It performs no I/O.
func Run(events []*diary.Event, profile *Profile, window DayWindow, audience Audience) *Result {
	if audience == "" {
		audience = AudiencePatient
	}
	stats := ComputeStats(events, window)
	suff := CheckSufficiency(events)
	res := &Result{
		Audience:    audience,
		Stats:       stats,
		Sufficiency: suff,
		DayWindow:   window,
		Patterns:    []ClinicalPattern{},
		Guidance:    []Guidance{},
		Events:      events,
	}
	switch {
	case len(events) == 0:
		res.Status = StatusNoData
	case !suff.Sufficient:
		res.Status = StatusInsufficient
	default:
		res.Status = StatusOK
		res.Patterns = EvaluateFor(audience, events, stats)
		res.Guidance = SupplementaryGuidance(res.Patterns, profile.Sex())
	}
	return res
}

type Service struct {
	events   EventSource
	profiles ProfileRepository
	window   DayWindow
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(events EventSource, profiles ProfileRepository, window DayWindow, logger zerolog.Logger) *Service {
	return &Service{
		events:   events,
		profiles: profiles,
		window:   window,
		logger:   logger.With().Str("component", "analysis").Logger(),
		now:      time.Now,
	}
}

func (s *Service) DayWindow() DayWindow { return s.window }

// Analyze loads the patient's events and profile concurrently and runs the
// analysis. A missing profile only disables sex-specific guidance.
func (s *Service) Analyze(ctx context.Context, sess auth.Session, patientID uuid.UUID, opts Options) (*Result, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}

	var (
		events  []*diary.Event
		profile *Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.events.AllByPatient(gctx, patientID, diary.Filter{From: opts.From, To: opts.To})
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}
		return nil
	})
	if s.profiles != nil {
		g.Go(func() error {
			p, err := s.profiles.GetProfile(gctx, patientID)
			switch {
			case errors.Is(err, ErrProfileNotFound):
				return nil
			case err != nil:
				return fmt.Errorf("load profile: %w", err)
			}
			profile = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := Run(events, profile, s.window, opts.Audience)
	res.PatientID = patientID
	res.From, res.To = opts.From, opts.To
	res.GeneratedAt = s.now().UTC()

	s.logger.Debug().
		Str("patient_id", patientID.String()).
		Str("status", string(res.Status)).
		Int("events", len(events)).
		Int("patterns", len(res.Patterns)).
		Msg("analysis complete")
	return res, nil
}

func (s *Service) GetProfile(ctx context.Context, sess auth.Session, patientID uuid.UUID) (*Profile, error) {
	if err := sess.Authorize(patientID); err != nil {
		return nil, err
	}
	return s.profiles.GetProfile(ctx, patientID)
}

func (s *Service) SaveProfile(ctx context.Context, sess auth.Session, p *Profile) error {
	if err := sess.Authorize(p.PatientID); err != nil {
		return err
	}
	if p.NationalID != "" && SexFromNationalID(p.NationalID) == SexUnknown {
		return fmt.Errorf("%w: national_id failed checksum validation", ErrInvalidProfile)
	}
	return s.profiles.UpsertProfile(ctx, p)
}
