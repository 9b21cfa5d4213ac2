// Package blocks partitions a patient's diary into fixed-duration recording
// blocks and keeps their aggregates current.
package blocks

import (
	"time"

	"github.com/google/uuid"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
)

type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusComplete   Status = "complete"
)

// DefaultDuration is the observation window of one block.
const DefaultDuration = 72 * time.Hour

// RecordingBlock maps to the recording_block table. WindowStart and
// WindowEnd are patient-local wall clock values; they never change once the
// block exists. A window opened next to an existing block may start after
// midnight or end early so the two never overlap, so it can be shorter than
// DefaultDuration.
type RecordingBlock struct {
	ID          uuid.UUID                  `json:"id"`
	PatientID   uuid.UUID                  `json:"patient_id"`
	WindowStart time.Time                  `json:"window_start"`
	WindowEnd   time.Time                  `json:"window_end"`
	Status      Status                     `json:"status"`
	EventCount  int                        `json:"event_count"`
	Fingerprint string                     `json:"-"`
	Stats       analysis.Stats             `json:"stats"`
	Sufficiency analysis.Sufficiency       `json:"sufficiency"`
	Patterns    []analysis.ClinicalPattern `json:"patterns"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Contains reports whether ts falls in [WindowStart, WindowEnd).
func (b *RecordingBlock) Contains(ts time.Time) bool {
	return !ts.Before(b.WindowStart) && ts.Before(b.WindowEnd)
}

// statusAt is complete once now has reached the window end. now is read in
// the same wall-clock frame as the window.
func statusAt(end, now time.Time) Status {
	if !now.Before(end) {
		return StatusComplete
	}
	return StatusIncomplete
}
