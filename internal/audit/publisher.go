package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trailguard/internal/platform/metrics"
)

// Sink receives a copy of every event in addition to the primary store.
// Used for the Kafka compliance feed; sink failures are operational noise,
// never request failures.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// appendTimeout bounds each persistence attempt so audit writes cannot add
// unbounded latency to the triggering request.
const appendTimeout = 2 * time.Second

// Publisher records audit events best-effort: the attempt is mandatory, the
// outcome is advisory. A failed write is logged on the operational channel
// and counted, but the caller's request proceeds regardless.
//
// With WithAsyncBuffer the publisher persists from a background goroutine;
// Close drains the buffer. A full buffer drops the event (counted) rather
// than blocking the request path.
type Publisher struct {
	store   Store
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	inbox chan Event
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to buffered background persistence.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

// WithSink adds a secondary delivery target alongside the primary store.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// NewPublisher builds a Publisher over the primary store.
func NewPublisher(store Store, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger, metrics: m}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records the event. It never returns an error and never blocks beyond
// the bounded persistence attempt.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		p.persist(event)
		return
	}
	select {
	case p.inbox <- event:
	default:
		if p.metrics != nil {
			p.metrics.AuditEventsDropped.Inc()
		}
		p.logger.Error("audit buffer full, event dropped",
			"action", string(event.Action),
			"data_subject", event.DataSubject,
		)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		p.persist(event)
	}
}

// persist uses its own context: the triggering request may already have
// completed (or been cancelled) by the time an async write lands.
func (p *Publisher) persist(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.AuditWriteFailures.Inc()
		}
		p.logger.Error("audit event not persisted",
			"action", string(event.Action),
			"data_subject", event.DataSubject,
			"status", event.Status,
			"error", err,
		)
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.logger.Warn("audit sink delivery failed",
				"action", string(event.Action),
				"error", err,
			)
		}
	}
}

// Close drains the async buffer and stops the background worker. Safe to call
// on a synchronous publisher and safe to call twice.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}
