package loginwatch

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantgrid/perimeter/pkg/audit"
	"github.com/verdantgrid/perimeter/pkg/observability"
)

func TestRegisterIncrements(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, 1, tracker.Register("user-1"))
	assert.Equal(t, 2, tracker.Register("user-1"))
	assert.Equal(t, 1, tracker.Register("user-2"))
	assert.Equal(t, 3, tracker.Register("user-1"))
}

func TestClearResetsCount(t *testing.T) {
	tracker := NewTracker()
	tracker.Register("user-1")
	tracker.Register("user-1")

	tracker.Clear("user-1")

	assert.Equal(t, 0, tracker.Count("user-1"))
	assert.Equal(t, 1, tracker.Register("user-1"))
}

func TestClearUnknownKeyIsNoop(t *testing.T) {
	tracker := NewTracker()
	tracker.Clear("never-seen")
	assert.Equal(t, 0, tracker.Count("never-seen"))
}

func TestConcurrentRegister(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Register("user-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Count("user-1"))
}

type memoryEventStore struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (m *memoryEventStore) Create(_ context.Context, event *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryEventStore) FindRecent(context.Context, audit.Query) ([]*audit.Event, error) {
	return nil, nil
}

func (m *memoryEventStore) FindOlderThan(context.Context, time.Time, int) ([]*audit.Event, error) {
	return nil, nil
}

func (m *memoryEventStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryEventStore) DeleteByIDs(context.Context, []string) (int64, error) {
	return 0, nil
}

func TestRecordFailureEmitsEvent(t *testing.T) {
	store := &memoryEventStore{}
	logger := observability.NewLoggerWithWriter("error", &bytes.Buffer{})
	pipeline := audit.NewPipeline(store, logger)
	tracker := NewTracker(WithPipeline(pipeline))

	count := tracker.RecordFailure(context.Background(), Attempt{
		Key:       "alice@example.com",
		UserID:    "user-1",
		TenantID:  "tenant-1",
		IPAddress: "203.0.113.9",
		Endpoint:  "/api/v1/auth/login",
		Reason:    "bad password",
	})
	require.Equal(t, 1, count)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.Equal(t, audit.EventTypeAuthLoginFailed, event.EventType)
	assert.Equal(t, audit.SeverityWarn, event.Severity)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, 1, event.Details["failure_count"])
	assert.Equal(t, "bad password", event.Details["reason"])
}

func TestRecordFailureWithoutPipeline(t *testing.T) {
	tracker := NewTracker()
	assert.Equal(t, 1, tracker.RecordFailure(context.Background(), Attempt{Key: "user-1"}))
	assert.Equal(t, 2, tracker.RecordFailure(context.Background(), Attempt{Key: "user-1"}))
}
