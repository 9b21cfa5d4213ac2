package scanimport

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

// Candidate is an entry read off a scanned page, awaiting review.
type Candidate struct {
	Kind            diary.Kind `json:"kind"`
	OccurredOn      string     `json:"occurred_on"`
	OccurredAt      string     `json:"occurred_at"`
	VolumeMl        *int       `json:"volume_ml,omitempty"`
	Urgency         *int       `json:"urgency,omitempty"`
	LeakageSeverity *string    `json:"leakage_severity,omitempty"`
	Trigger         *string    `json:"trigger,omitempty"`
	IntakeType      *string    `json:"intake_type,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Confidence      string     `json:"confidence"`
	// Issues lists validation problems the reviewer has to fix before the
	// candidate can be accepted.
	Issues []string `json:"issues,omitempty"`
}

// gradeConfidence maps anything the extractor did not grade to low.
func gradeConfidence(c string) string {
	switch c {
	case diary.ConfidenceHigh, diary.ConfidenceMedium, diary.ConfidenceLow:
		return c
	}
	return diary.ConfidenceLow
}

// Event converts the candidate into a scanned diary event.
func (c *Candidate) Event(patientID uuid.UUID) *diary.Event {
	confidence := gradeConfidence(c.Confidence)
	e := &diary.Event{
		PatientID:       patientID,
		OccurredOn:      c.OccurredOn,
		OccurredAt:      c.OccurredAt,
		Kind:            c.Kind,
		VolumeMl:        c.VolumeMl,
		Urgency:         c.Urgency,
		LeakageSeverity: c.LeakageSeverity,
		Trigger:         c.Trigger,
		IntakeType:      c.IntakeType,
		Notes:           c.Notes,
		Provenance:      diary.ProvenanceScanned,
		Confidence:      &confidence,
	}
	e.Normalize()
	return e
}

// review grades the candidate and records why it would be rejected.
func (c *Candidate) review(patientID uuid.UUID) {
	c.Confidence = gradeConfidence(c.Confidence)
	c.Issues = nil
	err := c.Event(patientID).Validate()
	if err == nil {
		return
	}
	msg := err.Error()
	if errors.Is(err, diary.ErrInvalidEvent) {
		msg = strings.TrimPrefix(msg, diary.ErrInvalidEvent.Error()+": ")
	}
	c.Issues = []string{msg}
}
