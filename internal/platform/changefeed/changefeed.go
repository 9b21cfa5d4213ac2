// Package changefeed delivers push notifications about diary writes. A live
// view subscribes for one patient and receives insert, update and delete
// changes until it closes its Subscription.
package changefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of write a Change describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a single diary write. Event holds the JSON encoding of the event
// after the write; it is empty for deletes.
type Change struct {
	Op        Op              `json:"op"`
	PatientID uuid.UUID       `json:"patient_id"`
	EventID   uuid.UUID       `json:"event_id"`
	Event     json.RawMessage `json:"event,omitempty"`
	At        time.Time       `json:"at"`
}

// Handlers receives changes. Nil callbacks are skipped. OnResync runs after
// changes were dropped for this subscriber; the receiver must reload its
// state from storage.
type Handlers struct {
	OnInsert func(Change)
	OnUpdate func(Change)
	OnDelete func(Change)
	OnResync func()
}

func (h Handlers) dispatch(c Change) {
	var fn func(Change)
	switch c.Op {
	case OpInsert:
		fn = h.OnInsert
	case OpUpdate:
		fn = h.OnUpdate
	case OpDelete:
		fn = h.OnDelete
	}
	if fn != nil {
		fn(c)
	}
}

// Publisher is the write side used by the diary service.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Bus is a Publisher that also supports per-patient subscriptions.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, patientID uuid.UUID, h Handlers) (*Subscription, error)
}

// Subscription is an active registration on a Bus. Close is idempotent;
// once it returns no handler of this subscription runs again. Close waits for
// a running handler, so it must not be called from inside one.
type Subscription struct {
	once  sync.Once
	close func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.close)
}

// Nop discards every change. It is used when no live views are wired, e.g.
// in the offline analyze command.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

func (Nop) Subscribe(context.Context, uuid.UUID, Handlers) (*Subscription, error) {
	return &Subscription{close: func() {}}, nil
}
