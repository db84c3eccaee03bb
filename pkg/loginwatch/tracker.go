package loginwatch

import (
	"context"
	"sync"

	"github.com/verdantgrid/perimeter/pkg/audit"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

// Tracker keeps an in-memory count of consecutive failed logins per key.
// Keys are caller-defined, typically a user ID or an email address.
type Tracker struct {
	mu       sync.Mutex
	counts   map[string]int
	pipeline *audit.Pipeline
	metrics  *observability.Metrics
}

type TrackerOption func(*Tracker)

// WithPipeline makes the tracker record an auth-login-failed security
// event for every failure reported through RecordFailure.
func WithPipeline(p *audit.Pipeline) TrackerOption {
	return func(t *Tracker) { t.pipeline = p }
}

func WithMetrics(m *observability.Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{counts: make(map[string]int)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register increments the failure count for key and returns the new count.
func (t *Tracker) Register(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key]
}

// Clear removes the failure count for key. Called on successful login.
func (t *Tracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, key)
}

// Count returns the current failure count for key without modifying it.
func (t *Tracker) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

// Attempt describes one failed login for audit purposes.
type Attempt struct {
	Key       string
	UserID    string
	TenantID  string
	IPAddress string
	UserAgent string
	Endpoint  string
	Reason    string
}

// RecordFailure registers the attempt and, when a pipeline is configured,
// emits an auth-login-failed event carrying the running failure count.
// Audit persistence errors do not affect the returned count.
func (t *Tracker) RecordFailure(ctx context.Context, attempt Attempt) int {
	count := t.Register(attempt.Key)

	if t.metrics != nil {
		t.metrics.FailedLoginsTotal.Inc()
	}

	if t.pipeline != nil {
		details := map[string]interface{}{
			"failure_count": count,
		}
		if attempt.Reason != "" {
			details["reason"] = attempt.Reason
		}
		_ = t.pipeline.LogEvent(ctx, &audit.Event{
			EventType: audit.EventTypeAuthLoginFailed,
			UserID:    attempt.UserID,
			TenantID:  attempt.TenantID,
			IPAddress: attempt.IPAddress,
			UserAgent: attempt.UserAgent,
			Endpoint:  attempt.Endpoint,
			Details:   details,
		})
	}

	return count
}
