package diary

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("diary event not found")
	ErrInvalidEvent = errors.New("invalid diary event")
)

var validSeverities = map[string]bool{
	SeveritySmall: true, SeverityMedium: true, SeverityLarge: true,
}

var validConfidence = map[string]bool{
	ConfidenceHigh: true, ConfidenceMedium: true, ConfidenceLow: true,
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseClock(s string) (time.Duration, bool) {
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

// Normalize fills defaults, canonicalizes enum casing and the time-of-day
// format, and derives the leakage weight. It is applied before Validate.
func (e *Event) Normalize() {
	e.Kind = Kind(normalize(string(e.Kind)))
	if e.Provenance == "" {
		e.Provenance = ProvenanceManual
	}
	e.Provenance = normalize(e.Provenance)
	if clock, ok := parseClock(e.OccurredAt); ok {
		layout := TimeLayout
		if clock%time.Minute != 0 {
			layout = "15:04:05"
		}
		e.OccurredAt = time.Time{}.Add(clock).Format(layout)
	}
	if e.LeakageSeverity != nil {
		s := normalize(*e.LeakageSeverity)
		e.LeakageSeverity = &s
	}
	if e.Confidence != nil {
		c := normalize(*e.Confidence)
		e.Confidence = &c
	}
	if e.Trigger != nil {
		tr := normalize(*e.Trigger)
		e.Trigger = &tr
	}
	if e.Kind == KindLeakage {
		// The weight is always derived from the pads, never taken as sent.
		e.LeakageWeightGrams = nil
		e.DeriveLeakageWeight()
	}
}

// Validate enforces the write-boundary rules. The analysis code assumes every
// stored event passed this check.
func (e *Event) Validate() error {
	if e.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	switch e.Kind {
	case KindVoid, KindIntake, KindLeakage:
	default:
		return invalid("kind must be void, intake or leakage, got %q", e.Kind)
	}
	if _, err := time.Parse(DateLayout, e.OccurredOn); err != nil {
		return invalid("occurred_on must be YYYY-MM-DD, got %q", e.OccurredOn)
	}
	if _, ok := parseClock(e.OccurredAt); !ok {
		return invalid("occurred_at must be HH:MM or HH:MM:SS, got %q", e.OccurredAt)
	}
	if e.VolumeMl != nil && *e.VolumeMl < 0 {
		return invalid("volume_ml must be nonnegative")
	}
	if e.Urgency != nil {
		if e.Kind != KindVoid {
			return invalid("urgency applies to void events only")
		}
		if *e.Urgency < 1 || *e.Urgency > 5 {
			return invalid("urgency must be between 1 and 5, got %d", *e.Urgency)
		}
	}
	if e.LeakageSeverity != nil && !validSeverities[*e.LeakageSeverity] {
		return invalid("leakage_severity must be small, medium or large, got %q", *e.LeakageSeverity)
	}
	for name, w := range map[string]*float64{
		"dry_pad_weight_g": e.DryPadWeightGrams,
		"wet_pad_weight_g": e.WetPadWeightGrams,
	} {
		if w != nil && *w < 0 {
			return invalid("%s must be nonnegative", name)
		}
	}
	if e.LeakageWeightGrams != nil && *e.LeakageWeightGrams < 0 {
		return invalid("leakage_weight_g must be nonnegative")
	}
	if e.Kind != KindLeakage && (e.LeakageSeverity != nil || e.DryPadWeightGrams != nil || e.WetPadWeightGrams != nil || e.LeakageWeightGrams != nil) {
		return invalid("leakage fields apply to leakage events only")
	}
	if e.IntakeType != nil && e.Kind != KindIntake {
		return invalid("intake_type applies to intake events only")
	}
	switch e.Provenance {
	case ProvenanceManual:
		if e.Confidence != nil {
			return invalid("confidence applies to scanned events only")
		}
	case ProvenanceScanned:
		if e.Confidence != nil && !validConfidence[*e.Confidence] {
			return invalid("confidence must be high, medium or low, got %q", *e.Confidence)
		}
	default:
		return invalid("provenance must be manual or scanned, got %q", e.Provenance)
	}
	return nil
}

// SortChronologically orders events by (occurred_on, occurred_at). Ties keep
// their input order.
func SortChronologically(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp().Before(events[j].Timestamp())
	})
}
