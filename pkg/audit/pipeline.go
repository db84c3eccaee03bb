package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Alerter pushes an event to an external sink. Delivery is best-effort
// and must never block event persistence.
type Alerter interface {
	Notify(ctx context.Context, event *Event) error
}

// Pipeline normalizes, persists and fans out security events.
type Pipeline struct {
	store   Store
	alerter Alerter
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithAlerter attaches a webhook or similar alert sink.
func WithAlerter(a Alerter) PipelineOption {
	return func(p *Pipeline) { p.alerter = a }
}

// WithMetrics attaches the metrics registry.
func WithMetrics(m *observability.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(store Store, logger *observability.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LogEvent persists one event. Missing fields are filled in: id,
// timestamp, and the severity default for the event type. A store
// failure is returned to the caller; alert delivery failures are
// absorbed so an unreachable webhook cannot break request handling.
func (p *Pipeline) LogEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = DefaultSeverity(event.EventType)
	}

	if err := p.store.Create(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.AuditStoreErrorsTotal.Inc()
		}
		p.logger.WithContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Error("failed to persist security event")
		return err
	}

	if p.metrics != nil {
		p.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType), string(event.Severity)).Inc()
	}

	if p.alerter != nil {
		// Detached from the request context so the caller's cancellation
		// does not abort delivery mid-flight.
		go func(event *Event) {
			defer observability.RecoverPanic(p.logger, "audit alert delivery")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := p.alerter.Notify(ctx, event); err != nil {
				if p.metrics != nil {
					p.metrics.AlertDeliveriesTotal.WithLabelValues("failure").Inc()
				}
				p.logger.WithError(err).
					WithField("event_type", string(event.EventType)).
					Warn("security alert delivery failed")
				return
			}
			if p.metrics != nil {
				p.metrics.AlertDeliveriesTotal.WithLabelValues("success").Inc()
			}
		}(event)
	}

	return nil
}

// Query returns stored events, newest first, applying the default limit
// when none is given.
func (p *Pipeline) Query(ctx context.Context, q Query) ([]*Event, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	return p.store.FindRecent(ctx, q)
}

// Export serializes matching events in the requested format.
func (p *Pipeline) Export(ctx context.Context, q Query, format ExportFormat) ([]byte, error) {
	events, err := p.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return Export(events, format)
}
