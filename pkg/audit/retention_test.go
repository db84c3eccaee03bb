package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	batches [][]*Event
	err     error
}

func (f *fakeArchiver) Archive(ctx context.Context, events []*Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

// sweepStore is a stateful in-memory Store so sweeps actually consume
// rows, unlike fakeStore which just records calls.
type sweepStore struct {
	events []*Event
}

func (s *sweepStore) Create(ctx context.Context, event *Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *sweepStore) FindRecent(ctx context.Context, q Query) ([]*Event, error) {
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *sweepStore) FindOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	out := make([]*Event, 0)
	for _, event := range s.events {
		if event.Timestamp.Before(cutoff) {
			out = append(out, event)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *sweepStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := s.events[:0]
	var deleted int64
	for _, event := range s.events {
		if event.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return deleted, nil
}

func (s *sweepStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := s.events[:0]
	var deleted int64
	for _, event := range s.events {
		if _, ok := drop[event.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return deleted, nil
}

func TestSweeperRunOnce(t *testing.T) {
	store := &fakeStore{deleteN: 17}
	now := time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC)

	s := NewSweeper(store, RetentionPolicy{RetentionDays: 90}, testLogger(),
		WithSweeperClock(func() time.Time { return now }))

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(17), deleted)

	require.Len(t, store.deleted, 1)
	assert.Equal(t, now.AddDate(0, 0, -90), store.deleted[0])
}

func TestSweeperArchivesBeforeDeleting(t *testing.T) {
	old := &Event{ID: "id-old", EventType: EventTypeAuditLog, Timestamp: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)}
	store := &fakeStore{older: []*Event{old}}
	archiver := &fakeArchiver{}

	s := NewSweeper(store, RetentionPolicy{RetentionDays: 90, ArchiveEnabled: true}, testLogger(),
		WithArchiver(archiver))

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	require.Len(t, archiver.batches, 1)
	assert.Equal(t, "id-old", archiver.batches[0][0].ID)

	// Only the archived row is deleted, and by id rather than by cutoff.
	require.Len(t, store.deletedIDs, 1)
	assert.Equal(t, []string{"id-old"}, store.deletedIDs[0])
	assert.Empty(t, store.deleted)
}

func TestSweeperArchiveFailureBlocksDeletion(t *testing.T) {
	old := &Event{ID: "id-old", Timestamp: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)}
	store := &fakeStore{older: []*Event{old}}
	archiver := &fakeArchiver{err: errors.New("bucket unreachable")}

	s := NewSweeper(store, RetentionPolicy{RetentionDays: 90, ArchiveEnabled: true}, testLogger(),
		WithArchiver(archiver))

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.deleted)
	assert.Empty(t, store.deletedIDs)
}

func TestSweeperRunTwiceIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC)
	store := &sweepStore{events: []*Event{
		{ID: "expired-1", Timestamp: now.AddDate(0, 0, -120)},
		{ID: "expired-2", Timestamp: now.AddDate(0, 0, -91)},
		{ID: "recent", Timestamp: now.Add(-time.Hour)},
	}}

	s := NewSweeper(store, RetentionPolicy{RetentionDays: 90}, testLogger(),
		WithSweeperClock(func() time.Time { return now }))

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.Len(t, store.events, 1)
	assert.Equal(t, "recent", store.events[0].ID)

	deleted, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	require.Len(t, store.events, 1)
	assert.Equal(t, "recent", store.events[0].ID)
}

func TestSweeperArchivesEveryRowSharingATimestamp(t *testing.T) {
	// More expired rows than one batch, all with the same timestamp, so
	// paging cannot lean on the timestamp to make progress.
	now := time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC)
	ts := now.AddDate(0, 0, -100)

	store := &sweepStore{}
	total := archiveBatchSize + 1
	for i := 0; i < total; i++ {
		store.events = append(store.events, &Event{ID: fmt.Sprintf("expired-%d", i), Timestamp: ts})
	}
	archiver := &fakeArchiver{}

	s := NewSweeper(store, RetentionPolicy{RetentionDays: 90, ArchiveEnabled: true}, testLogger(),
		WithArchiver(archiver), WithSweeperClock(func() time.Time { return now }))

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(total), deleted)
	assert.Empty(t, store.events)

	require.Len(t, archiver.batches, 2)
	archived := 0
	for _, batch := range archiver.batches {
		archived += len(batch)
	}
	assert.Equal(t, total, archived)

	deleted, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestSweeperStartRejectsBadCron(t *testing.T) {
	s := NewSweeper(&fakeStore{}, DefaultRetentionPolicy(), testLogger())
	err := s.Start("not a cron spec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid retention cron expression")
}

func TestSweeperStartAndStop(t *testing.T) {
	s := NewSweeper(&fakeStore{}, DefaultRetentionPolicy(), testLogger())
	require.NoError(t, s.Start("0 3 * * *"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
