package changefeed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const subscriberBuffer = 256

type subscriber struct {
	patientID uuid.UUID
	handlers  Handlers
	ch        chan Change
	wake      chan struct{}
	lagged    atomic.Bool
	done      chan struct{}
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		select {
		case c, ok := <-s.ch:
			if !ok {
				return
			}
			s.handlers.dispatch(c)
		case <-s.wake:
		}
		// Resync only once the backlog is drained, so the reload sees every
		// write that was dropped.
		if len(s.ch) == 0 && s.lagged.CompareAndSwap(true, false) && s.handlers.OnResync != nil {
			s.handlers.OnResync()
		}
	}
}

// drop records a change that did not fit the queue.
func (s *subscriber) drop() {
	s.lagged.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// MemoryBus fans changes out to subscribers within one process. Each
// subscriber has its own buffered queue and goroutine, so a slow live view
// never blocks a diary write. A change for a full queue is dropped and the
// subscriber's OnResync runs once its backlog is drained.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	logger zerolog.Logger
}

func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Publish delivers c to every subscriber of c.PatientID.
func (b *MemoryBus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[c.PatientID] {
		select {
		case s.ch <- c:
		default:
			s.drop()
			b.logger.Warn().
				Str("patient_id", c.PatientID.String()).
				Str("op", string(c.Op)).
				Msg("change feed subscriber queue full, dropping change and requesting resync")
		}
	}
	return nil
}

// Subscribe registers h for patientID. The subscription ends when Close is
// called or ctx is done, whichever happens first.
func (b *MemoryBus) Subscribe(ctx context.Context, patientID uuid.UUID, h Handlers) (*Subscription, error) {
	s := &subscriber{
		patientID: patientID,
		handlers:  h,
		ch:        make(chan Change, subscriberBuffer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[patientID] == nil {
		b.subs[patientID] = make(map[*subscriber]struct{})
	}
	b.subs[patientID][s] = struct{}{}
	b.mu.Unlock()

	go s.run()

	closed := make(chan struct{})
	sub := &Subscription{close: func() {
		close(closed)
		b.remove(s)
		<-s.done
	}}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-closed:
		}
	}()

	return sub, nil
}

func (b *MemoryBus) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[s.patientID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.patientID)
		}
	}
	close(s.ch)
}

// SubscriberCount returns the number of live subscriptions for patientID.
func (b *MemoryBus) SubscriberCount(patientID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[patientID])
}
