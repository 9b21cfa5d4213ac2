package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

type Options struct {
	Duration  time.Duration
	DayWindow analysis.DayWindow
	// Now is compared with window ends as a wall-clock value.
	Now time.Time
}

func (o Options) duration() time.Duration {
	if o.Duration <= 0 {
		return DefaultDuration
	}
	return o.Duration
}

// Segment assigns events to blocks and recomputes every block's aggregates.
//
// existing are blocks created by earlier runs. Their windows are reused as
// they are, so repeated runs over a growing event set never move a boundary.
// An event outside every window opens a new block at midnight of its own
// date. A new window is clipped so it never overlaps an existing one: its
// start moves past any window that already covers part of that day, and its
// end stops at the start of the next later window.
//
// The result holds the existing blocks, updated in place, followed by the
// new ones in the order they were opened. An empty event list with no
// existing blocks yields no blocks.
func Segment(events []*diary.Event, existing []*RecordingBlock, opts Options) []*RecordingBlock {
	sorted := make([]*diary.Event, len(events))
	copy(sorted, events)
	diary.SortChronologically(sorted)

	blocks := make([]*RecordingBlock, 0, len(existing))
	blocks = append(blocks, existing...)
	assigned := make(map[*RecordingBlock][]*diary.Event, len(blocks))

	for _, e := range sorted {
		ts := e.Timestamp()
		var target *RecordingBlock
		for _, b := range blocks {
			if b.Contains(ts) {
				target = b
				break
			}
		}
		if target == nil {
			target = openBlock(blocks, e, opts.duration())
			blocks = append(blocks, target)
		}
		assigned[target] = append(assigned[target], e)
	}

	for _, b := range blocks {
		fill(b, assigned[b], opts)
	}
	return blocks
}

func openBlock(blocks []*RecordingBlock, e *diary.Event, d time.Duration) *RecordingBlock {
	ts := e.Timestamp()
	start := e.Day()
	// ts lies outside every window, so any window reaching past midnight
	// ends at or before ts.
	for _, b := range blocks {
		if b.WindowEnd.After(start) && !b.WindowEnd.After(ts) {
			start = b.WindowEnd
		}
	}
	end := start.Add(d)
	for _, b := range blocks {
		if b.WindowStart.After(start) && b.WindowStart.Before(end) {
			end = b.WindowStart
		}
	}
	return &RecordingBlock{
		PatientID:   e.PatientID,
		WindowStart: start,
		WindowEnd:   end,
	}
}

// fill recomputes the derived fields of b from exactly its events. Patterns
// use the clinician battery and are withheld until the block passes the
// data-sufficiency gate.
func fill(b *RecordingBlock, events []*diary.Event, opts Options) {
	b.EventCount = len(events)
	b.Stats = analysis.ComputeStats(events, opts.DayWindow)
	b.Sufficiency = analysis.CheckSufficiency(events)
	b.Patterns = []analysis.ClinicalPattern{}
	if b.Sufficiency.Sufficient {
		b.Patterns = analysis.EvaluateFor(analysis.AudienceClinician, events, b.Stats)
	}
	b.Status = statusAt(b.WindowEnd, opts.Now)
	b.Fingerprint = fingerprint(b)
}

// fingerprint hashes every derived field. Two runs that produce the same
// fingerprint and status need no write.
func fingerprint(b *RecordingBlock) string {
	raw, _ := json.Marshal(struct {
		Count       int
		Stats       analysis.Stats
		Sufficiency analysis.Sufficiency
		Patterns    []analysis.ClinicalPattern
	}{b.EventCount, b.Stats, b.Sufficiency, b.Patterns})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SortNewestFirst orders blocks by window start descending.
func SortNewestFirst(blocks []*RecordingBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].WindowStart.After(blocks[j].WindowStart)
	})
}
