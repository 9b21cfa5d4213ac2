package analysis

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
)

// LiveView keeps one patient's event snapshot current from change-feed
// messages, so a connected client sees recomputed stats without polling.
type LiveView struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*diary.Event
	profile  *Profile
	window   DayWindow
	audience Audience
}

func NewLiveView(initial []*diary.Event, window DayWindow, audience Audience) *LiveView {
	v := &LiveView{
		events:   make(map[uuid.UUID]*diary.Event, len(initial)),
		window:   window,
		audience: audience,
	}
	for _, e := range initial {
		v.events[e.ID] = e
	}
	return v
}

// Load replaces the snapshot with events and sets the profile used for
// guidance. A nil profile yields no guidance.
func (v *LiveView) Load(events []*diary.Event, profile *Profile) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.events = make(map[uuid.UUID]*diary.Event, len(events))
	for _, e := range events {
		v.events[e.ID] = e
	}
	v.profile = profile
}

// Apply folds c into the snapshot. Inserts and updates replace the event by
// id and deletes of unknown ids are no-ops, so replaying a change is safe.
func (v *LiveView) Apply(c changefeed.Change) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch c.Op {
	case changefeed.OpInsert, changefeed.OpUpdate:
		var e diary.Event
		if err := json.Unmarshal(c.Event, &e); err != nil {
			return fmt.Errorf("decode event %s: %w", c.EventID, err)
		}
		v.events[e.ID] = &e
	case changefeed.OpDelete:
		delete(v.events, c.EventID)
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
	return nil
}

// Len returns the number of events in the snapshot.
func (v *LiveView) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

// Snapshot runs the analysis over the current events.
func (v *LiveView) Snapshot() *Result {
	v.mu.Lock()
	events := make([]*diary.Event, 0, len(v.events))
	for _, e := range v.events {
		events = append(events, e)
	}
	profile := v.profile
	v.mu.Unlock()

	diary.SortChronologically(events)
	return Run(events, profile, v.window, v.audience)
}
