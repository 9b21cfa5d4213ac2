package diary

import (
	"time"

	"github.com/google/uuid"
)

// Kind determines which optional fields of an Event are meaningful.
type Kind string

const (
	KindVoid    Kind = "void"
	KindIntake  Kind = "intake"
	KindLeakage Kind = "leakage"
)

const (
	SeveritySmall  = "small"
	SeverityMedium = "medium"
	SeverityLarge  = "large"
)

const (
	ProvenanceManual  = "manual"
	ProvenanceScanned = "scanned"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Event maps to the diary_event table. Date and time are patient-local wall
// clock values with no zone attached.
type Event struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	OccurredOn         string    `db:"occurred_on" json:"occurred_on"`
	OccurredAt         string    `db:"occurred_at" json:"occurred_at"`
	Kind               Kind      `db:"kind" json:"kind"`
	VolumeMl           *int      `db:"volume_ml" json:"volume_ml,omitempty"`
	Urgency            *int      `db:"urgency" json:"urgency,omitempty"`
	LeakageSeverity    *string   `db:"leakage_severity" json:"leakage_severity,omitempty"`
	DryPadWeightGrams  *float64  `db:"dry_pad_weight_g" json:"dry_pad_weight_g,omitempty"`
	WetPadWeightGrams  *float64  `db:"wet_pad_weight_g" json:"wet_pad_weight_g,omitempty"`
	LeakageWeightGrams *float64  `db:"leakage_weight_g" json:"leakage_weight_g,omitempty"`
	Trigger            *string   `db:"trigger" json:"trigger,omitempty"`
	IntakeType         *string   `db:"intake_type" json:"intake_type,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	Provenance         string    `db:"provenance" json:"provenance"`
	Confidence         *string   `db:"confidence" json:"confidence,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Timestamp combines OccurredOn and OccurredAt into a wall-clock time in UTC.
// Malformed values yield the zero time; they are rejected before storage.
func (e *Event) Timestamp() time.Time {
	day, err := time.Parse(DateLayout, e.OccurredOn)
	if err != nil {
		return time.Time{}
	}
	clock, ok := parseClock(e.OccurredAt)
	if !ok {
		return day
	}
	return day.Add(clock)
}

// Day returns local midnight of OccurredOn.
func (e *Event) Day() time.Time {
	day, _ := time.Parse(DateLayout, e.OccurredOn)
	return day
}

// Hour returns the hour of day of OccurredAt, or -1 when it is malformed.
func (e *Event) Hour() int {
	clock, ok := parseClock(e.OccurredAt)
	if !ok {
		return -1
	}
	return int(clock / time.Hour)
}

// Volume returns VolumeMl or 0 when absent.
func (e *Event) Volume() int {
	if e.VolumeMl == nil {
		return 0
	}
	return *e.VolumeMl
}

// TriggerName returns the lower-cased trigger or "".
func (e *Event) TriggerName() string {
	if e.Trigger == nil {
		return ""
	}
	return normalize(*e.Trigger)
}

// DeriveLeakageWeight sets LeakageWeightGrams from the pad weights when both
// are present. The result is clamped at zero.
func (e *Event) DeriveLeakageWeight() {
	if e.DryPadWeightGrams == nil || e.WetPadWeightGrams == nil {
		return
	}
	w := *e.WetPadWeightGrams - *e.DryPadWeightGrams
	if w < 0 {
		w = 0
	}
	e.LeakageWeightGrams = &w
}

// Weight-derived severity cut-offs in grams.
const (
	smallLeakMaxGrams  = 10.0
	mediumLeakMaxGrams = 50.0
)

// EffectiveSeverity is the severity used for reporting: a measured weight
// wins over the self-reported label.
func (e *Event) EffectiveSeverity() string {
	if e.LeakageWeightGrams != nil {
		switch w := *e.LeakageWeightGrams; {
		case w < smallLeakMaxGrams:
			return SeveritySmall
		case w < mediumLeakMaxGrams:
			return SeverityMedium
		default:
			return SeverityLarge
		}
	}
	if e.LeakageSeverity != nil {
		return *e.LeakageSeverity
	}
	return ""
}

// Filter narrows a List call. Dates are inclusive YYYY-MM-DD bounds.
type Filter struct {
	From string
	To   string
	Kind Kind
}

// Matches reports whether e passes the filter. It mirrors the SQL predicate
// used by the Postgres repository.
func (f Filter) Matches(e *Event) bool {
	if f.From != "" && e.OccurredOn < f.From {
		return false
	}
	if f.To != "" && e.OccurredOn > f.To {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}
