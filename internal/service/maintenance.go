package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/queue"
	"github.com/rs/zerolog"
)

// Maintenance is the periodic housekeeping run by the scheduler: it returns
// expired job leases and due retries to the queue, publishes queue depth
// and prunes groups past the retention window.
type Maintenance struct {
	jobs      queue.JobQueue
	messages  message.MessageRepository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewMaintenance returns the housekeeping batch. A retention of zero keeps
// everything.
func NewMaintenance(jobs queue.JobQueue, messages message.MessageRepository, retention time.Duration, log zerolog.Logger) *Maintenance {
	return &Maintenance{
		jobs:      jobs,
		messages:  messages,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "maintenance").Logger(),
	}
}

// ProcessBatch runs one housekeeping pass.
func (m *Maintenance) ProcessBatch(ctx context.Context) error {
	now := m.now()

	requeued, promoted, err := m.jobs.Sweep(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep jobs: %w", err)
	}
	if requeued > 0 {
		m.log.Warn().Int("requeued", requeued).Msg("expired job leases returned to the queue")
	}
	if promoted > 0 {
		m.log.Debug().Int("promoted", promoted).Msg("delayed jobs promoted")
	}

	stats, err := m.jobs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	metrics.QueueDepth.WithLabelValues("ready").Set(float64(stats.Ready))
	metrics.QueueDepth.WithLabelValues("leased").Set(float64(stats.Leased))
	metrics.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
	metrics.QueueDepth.WithLabelValues("dead").Set(float64(stats.Dead))

	if m.retention <= 0 {
		return nil
	}
	deleted, err := m.messages.DeleteGroupsBefore(ctx, now.Add(-m.retention))
	if err != nil {
		return fmt.Errorf("prune groups: %w", err)
	}
	if deleted > 0 {
		m.log.Info().Int64("groups", deleted).Msg("pruned groups past retention")
	}
	return nil
}
