package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/rs/zerolog"
)

// Handler processes one event. Returning ErrDeferred re-queues the event.
type Handler func(ctx context.Context, e *Event) error

// Queue delivers events to a single consumer, one at a time. Deferred
// events are kept, coalesced per kind, and re-delivered ahead of every new
// event and on each retry tick. Nothing is ever dropped.
type Queue struct {
	incoming chan *Event
	retry    time.Duration
	broker   *Broker

	mu       sync.Mutex
	deferred map[Kind]*Event
	order    []Kind
	overflow []*Event

	logger zerolog.Logger
}

// NewQueue creates a queue re-delivering deferred events every retry
func NewQueue(retry time.Duration, broker *Broker) *Queue {
	if retry <= 0 {
		retry = 10 * time.Second
	}
	return &Queue{
		incoming: make(chan *Event, 256),
		retry:    retry,
		broker:   broker,
		deferred: make(map[Kind]*Event),
		logger:   log.WithComponent("events"),
	}
}

// Enqueue submits an event without blocking
func (q *Queue) Enqueue(e *Event) {
	select {
	case q.incoming <- e:
	default:
		q.mu.Lock()
		q.overflow = append(q.overflow, e)
		q.mu.Unlock()
		q.logger.Warn().Str("event", string(e.Kind)).Msg("Event queue full, holding event for later delivery")
	}
}

// Deferred returns the kinds currently waiting for re-delivery, oldest first
func (q *Queue) Deferred() []Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Kind(nil), q.order...)
}

// Run consumes events until ctx is cancelled
func (q *Queue) Run(ctx context.Context, h Handler) error {
	ticker := time.NewTicker(q.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-q.incoming:
			q.Redeliver(ctx, h)
			q.Dispatch(ctx, h, e)
			q.drainOverflow(ctx, h)
		case <-ticker.C:
			q.Redeliver(ctx, h)
			q.drainOverflow(ctx, h)
		}
	}
}

// Redeliver hands every deferred event to h once more
func (q *Queue) Redeliver(ctx context.Context, h Handler) {
	q.mu.Lock()
	pending := make([]*Event, 0, len(q.order))
	for _, k := range q.order {
		pending = append(pending, q.deferred[k])
	}
	q.deferred = make(map[Kind]*Event)
	q.order = nil
	q.mu.Unlock()
	metrics.DeferredEvents.Set(0)

	for _, e := range pending {
		if ctx.Err() != nil {
			q.hold(e)
			continue
		}
		q.Dispatch(ctx, h, e)
	}
}

func (q *Queue) drainOverflow(ctx context.Context, h Handler) {
	q.mu.Lock()
	pending := q.overflow
	q.overflow = nil
	q.mu.Unlock()

	for _, e := range pending {
		q.Dispatch(ctx, h, e)
	}
}

// Dispatch runs h for one event and records the outcome
func (q *Queue) Dispatch(ctx context.Context, h Handler, e *Event) Outcome {
	e.Attempts++
	logger := log.WithEvent(q.logger, string(e.Kind), e.ID)

	timer := metrics.NewTimer()
	err := h(ctx, e)
	took := timer.Duration()
	timer.ObserveDurationVec(metrics.EventDuration, string(e.Kind))

	notice := &Notice{Event: *e, Duration: took}
	switch {
	case errors.Is(err, ErrDeferred):
		notice.Outcome = OutcomeDeferred
		q.hold(e)
		logger.Debug().Int("attempts", e.Attempts).Msg("Event deferred")
	case err != nil:
		notice.Outcome = OutcomeFailed
		notice.Error = err.Error()
		logger.Error().Err(err).Msg("Event handler failed")
	default:
		notice.Outcome = OutcomeHandled
		logger.Debug().Dur("took", took).Msg("Event handled")
	}

	metrics.EventsTotal.WithLabelValues(string(e.Kind), string(notice.Outcome)).Inc()
	if q.broker != nil {
		q.broker.Publish(notice)
	}
	return notice.Outcome
}

// hold parks a deferred event, replacing an older one of the same kind
func (q *Queue) hold(e *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.deferred[e.Kind]; !ok {
		q.order = append(q.order, e.Kind)
	}
	q.deferred[e.Kind] = e
	metrics.DeferredEvents.Set(float64(len(q.order)))
}
