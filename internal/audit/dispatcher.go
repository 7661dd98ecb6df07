package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/staffmanagement/authservice/internal/config"
)

type job struct {
	ctx   context.Context //nolint:containedctx // detached request context handed to a worker
	event Event
}

// Dispatcher records events on a bounded pool of workers off the request path.
// Delivery is attempted at most once: events are dropped when the queue is full or closed.
type Dispatcher struct {
	next    Recorder
	queue   chan job
	group   errgroup.Group
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts cfg.Workers workers feeding next.
func NewDispatcher(next Recorder, cfg config.Audit) *Dispatcher {
	workers := max(cfg.Workers, 1)
	queueSize := max(cfg.QueueSize, 1)

	d := &Dispatcher{
		next:    next,
		queue:   make(chan job, queueSize),
		timeout: cfg.WriteTimeout,
	}

	for range workers {
		d.group.Go(d.work)
	}

	return d
}

func (d *Dispatcher) work() error {
	for j := range d.queue {
		ctx := j.ctx

		var cancel context.CancelFunc = func() {}
		if d.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
		}

		d.next.Record(ctx, j.event)
		cancel()
	}

	return nil
}

// Record stamps the event time if missing and enqueues the event without blocking.
func (d *Dispatcher) Record(ctx context.Context, e Event) {
	if e.EventTime.IsZero() {
		e.EventTime = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(e, "dispatcher closed")
		return
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), event: e}:
	default:
		d.drop(e, "queue full")
	}
}

func (d *Dispatcher) drop(e Event, reason string) {
	observe(e.Type, outcomeDropped)
	log.Error().
		Str("event_type", string(e.Type)).
		Str("subject", e.Subject).
		Time("event_time", e.EventTime).
		Str("reason", reason).
		Msg("audit event dropped")
}

// Close stops accepting events, drains the queue and waits for the workers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	return d.group.Wait() //nolint:wrapcheck
}
