// Package eventbus routes generator events to the active animation plugin.
// Publishing never blocks: each destination has a bounded queue that drops
// its oldest events when the destination falls behind.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lightshow/lightshow/internal/animation"
)

// Destination receives events in publish order.
type Destination interface {
	Notify(ctx context.Context, e animation.Event) error
}

// DestinationFunc adapts a function to Destination.
type DestinationFunc func(ctx context.Context, e animation.Event) error

func (f DestinationFunc) Notify(ctx context.Context, e animation.Event) error {
	return f(ctx, e)
}

// Envelope is a queued event with its identity and publish time.
type Envelope struct {
	ID        uuid.UUID
	Timestamp time.Time
	Event     animation.Event
}

// Stats are the bus counters.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

type route struct {
	dest   Destination
	queue  *Queue[Envelope]
	cancel context.CancelFunc
	done   chan struct{}
}

// Bus delivers published events to at most one destination at a time.
type Bus struct {
	// mu protects route and closed
	mu     sync.Mutex
	route  *route
	closed bool

	capacity int
	logger   *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Bus whose destination queues hold capacity events.
//
// Parameters:
//   - capacity: per-destination queue size (recommended: 16-256)
//   - logger: structured logger; nil uses slog.Default()
//
// Returns:
//   - *Bus: a bus with no destination; events are dropped until
//     SetDestination is called
//
// Example:
//
//	bus := eventbus.New(64, logger)
//	bus.SetDestination(pluginHost)
//	bus.Publish(animation.BeatEvent{BPM: 128})
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity < 1 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		capacity: capacity,
		logger:   logger.With("component", "eventbus"),
	}
}

// Publish enqueues e for the current destination without blocking. With no
// destination the event is counted as dropped.
func (b *Bus) Publish(e animation.Event) {
	b.published.Add(1)

	b.mu.Lock()
	r := b.route
	b.mu.Unlock()

	if r == nil {
		b.dropped.Add(1)
		return
	}
	env := Envelope{ID: uuid.New(), Timestamp: time.Now(), Event: e}
	if r.queue.Push(env) {
		b.dropped.Add(1)
	}
}

// SetDestination replaces the destination. Events still queued for the
// previous destination are discarded. A nil destination detaches the bus.
// It waits for the previous delivery goroutine to stop.
func (b *Bus) SetDestination(dest Destination) {
	b.mu.Lock()
	old := b.route
	b.route = nil
	if dest != nil && !b.closed {
		ctx, cancel := context.WithCancel(context.Background())
		r := &route{
			dest:   dest,
			queue:  NewQueue[Envelope](b.capacity),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		b.route = r
		go b.deliver(ctx, r)
	}
	b.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
		if n := old.queue.Len(); n > 0 {
			b.dropped.Add(uint64(n))
		}
	}
}

// deliver drains r's queue into its destination until ctx is cancelled.
func (b *Bus) deliver(ctx context.Context, r *route) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.queue.Ready():
		}

		for {
			if ctx.Err() != nil {
				return
			}
			env, ok := r.queue.Pop()
			if !ok {
				break
			}
			if err := r.dest.Notify(ctx, env.Event); err != nil {
				b.failed.Add(1)
				b.logger.Debug("Event delivery failed",
					"event_id", env.ID,
					"type", env.Event.EventType(),
					"age", time.Since(env.Timestamp),
					"error", err,
				)
				continue
			}
			b.delivered.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	s := Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
	}
	b.mu.Lock()
	if b.route != nil {
		s.Queued = b.route.queue.Len()
	}
	b.mu.Unlock()
	return s
}

// Close detaches the destination and rejects future destinations.
func (b *Bus) Close() {
	b.SetDestination(nil)
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
