package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/verdantgrid/perimeter/pkg/observability"
)

// archiveBatchSize bounds memory during the archive pass.
const archiveBatchSize = 1000

// Sweeper enforces the retention policy, optionally archiving expired
// events before deleting them.
type Sweeper struct {
	store    Store
	archiver Archiver
	policy   RetentionPolicy
	logger   *observability.Logger
	metrics  *observability.Metrics
	cron     *cron.Cron
	now      func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithArchiver enables archiving before deletion.
func WithArchiver(a Archiver) SweeperOption {
	return func(s *Sweeper) { s.archiver = a }
}

// WithSweeperMetrics attaches the metrics registry.
func WithSweeperMetrics(m *observability.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweeperClock overrides the time source, for tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(store Store, policy RetentionPolicy, logger *observability.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs a single retention sweep and reports how many events
// were deleted.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.policy.RetentionDays)

	var deleted int64
	var err error
	if s.policy.ArchiveEnabled && s.archiver != nil {
		// Never delete what we failed to archive.
		deleted, err = s.archiveExpired(ctx, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("archive pass failed: %w", err)
		}
	} else {
		deleted, err = s.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return 0, err
		}
	}

	if s.metrics != nil && deleted > 0 {
		s.metrics.RetentionDeletedTotal.Add(float64(deleted))
	}
	s.logger.WithFields(map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("retention sweep complete")

	return deleted, nil
}

func (s *Sweeper) archiveExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		batch, err := s.store.FindOlderThan(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		if err := s.archiver.Archive(ctx, batch); err != nil {
			return total, err
		}

		// Delete exactly the archived batch. Deleting by timestamp would
		// sweep up not-yet-archived rows that share the boundary timestamp.
		ids := make([]string, len(batch))
		for i, event := range batch {
			ids[i] = event.ID
		}
		deleted, err := s.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, err
		}
		total += deleted

		if len(batch) < archiveBatchSize {
			return total, nil
		}
	}
}

// Start schedules periodic sweeps with the given cron expression.
func (s *Sweeper) Start(cronSpec string) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		defer observability.RecoverPanic(s.logger, "retention sweep")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.WithError(err).Error("retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention cron expression %q: %w", cronSpec, err)
	}

	c.Start()
	s.cron = c
	s.logger.WithField("schedule", cronSpec).Info("retention sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
