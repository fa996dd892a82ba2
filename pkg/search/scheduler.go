package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

// Rebuilder is the slice of IndexStore the scheduler depends on
type Rebuilder interface {
	Rebuild(ctx context.Context, entityType planning.EntityType) (*RebuildStats, error)
}

// CacheFlusher invalidates cached projections after a snapshot swap
type CacheFlusher interface {
	Flush(ctx context.Context, entityType planning.EntityType) error
}

// SchedulerConfig holds refresh cadence and failure policy
type SchedulerConfig struct {
	Schedule              string
	RebuildTimeout        time.Duration
	FailureAlertThreshold int
}

// Scheduler triggers index rebuilds on a cron cadence and on demand.
// At most one rebuild runs per entity type: requests arriving while one
// is in flight are coalesced onto it. A failed rebuild retains the
// previous snapshot; consecutive failures are tracked and surfaced as a
// monitoring signal once they cross the alert threshold.
type Scheduler struct {
	rebuilder Rebuilder
	flusher   CacheFlusher // may be nil
	config    SchedulerConfig
	metrics   *observability.Metrics
	logger    *observability.Logger

	cron  *cron.Cron
	group singleflight.Group

	mu       sync.Mutex
	failures map[planning.EntityType]int
}

// NewScheduler creates a refresh scheduler
func NewScheduler(rebuilder Rebuilder, flusher CacheFlusher, config SchedulerConfig, metrics *observability.Metrics, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		rebuilder: rebuilder,
		flusher:   flusher,
		config:    config,
		metrics:   metrics,
		logger:    logger,
		cron:      cron.New(),
		failures:  make(map[planning.EntityType]int),
	}
}

// Start registers the periodic rebuild and starts the cron loop
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.RebuildAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Infof("Refresh scheduler started with schedule %q", s.config.Schedule)
	return nil
}

// Stop stops the cron loop and waits for any running rebuild to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Refresh scheduler stopped")
}

// RebuildAll rebuilds every entity type, continuing past individual
// failures.
func (s *Scheduler) RebuildAll(ctx context.Context) {
	for _, entityType := range planning.AllEntityTypes() {
		if _, err := s.TriggerRebuild(ctx, entityType); err != nil {
			s.logger.WithError(err).Errorf("Rebuild of %s failed", entityType)
		}
	}
}

// TriggerRebuild rebuilds one entity type's snapshot. Safe to call
// concurrently: callers arriving while a rebuild for the same type is
// in flight share its result instead of queueing another run.
func (s *Scheduler) TriggerRebuild(ctx context.Context, entityType planning.EntityType) (*RebuildStats, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	result, err, shared := s.group.Do(string(entityType), func() (interface{}, error) {
		return s.rebuild(entityType)
	})
	if shared {
		s.metrics.RebuildCoalescedTotal.WithLabelValues(string(entityType)).Inc()
	}
	if err != nil {
		return nil, err
	}
	return result.(*RebuildStats), nil
}

// rebuild runs one bounded rebuild and maintains the failure counters.
// It deliberately uses its own context: a coalesced caller timing out
// must not cancel the shared run.
func (s *Scheduler) rebuild(entityType planning.EntityType) (*RebuildStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RebuildTimeout)
	defer cancel()

	label := string(entityType)
	start := time.Now()

	stats, err := s.rebuilder.Rebuild(ctx, entityType)
	s.metrics.RebuildDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.RebuildTotal.WithLabelValues(label, "failure").Inc()
		failures := s.recordFailure(entityType)
		s.metrics.RebuildConsecutiveFailures.WithLabelValues(label).Set(float64(failures))

		log := s.logger.WithError(err).WithFields(map[string]interface{}{
			"entity_type":          label,
			"consecutive_failures": failures,
		})
		if failures >= s.config.FailureAlertThreshold {
			log.Errorf("Rebuild of %s has failed %d consecutive times; previous snapshot retained", entityType, failures)
		} else {
			log.Warnf("Rebuild of %s failed; previous snapshot retained", entityType)
		}
		return nil, err
	}

	s.metrics.RebuildTotal.WithLabelValues(label, "success").Inc()
	s.metrics.RebuildDocumentsIndexed.WithLabelValues(label).Set(float64(stats.Documents))
	s.metrics.RebuildLastSuccessUnix.WithLabelValues(label).Set(float64(time.Now().Unix()))
	s.resetFailures(entityType)
	s.metrics.RebuildConsecutiveFailures.WithLabelValues(label).Set(0)

	if s.flusher != nil {
		if err := s.flusher.Flush(ctx, entityType); err != nil {
			s.logger.WithError(err).Warnf("Failed to flush projection cache for %s", entityType)
		}
	}

	return stats, nil
}

func (s *Scheduler) recordFailure(entityType planning.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[entityType]++
	return s.failures[entityType]
}

func (s *Scheduler) resetFailures(entityType planning.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[entityType] = 0
}

// ConsecutiveFailures returns the current failure streak for one
// entity type.
func (s *Scheduler) ConsecutiveFailures(entityType planning.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[entityType]
}
