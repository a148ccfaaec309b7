package stall

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/worker"
)

// Monitor scans for active jobs whose lease expired without a heartbeat and
// reclaims them: back to queued with the stall counter bumped, or to the
// dead-letter queue once the counter reaches the ceiling. This is the
// recovery path for worker crashes; it shares the store's guarded-update
// primitive with claim, so it is safe to run while workers are active.
type Monitor struct {
	store    *queue.Store
	hub      *pubsub.Hub
	interval time.Duration
	ceiling  int
	metrics  metrics.Metrics
	notifier worker.Notifier
	logger   *slog.Logger
}

// Options bundles the monitor's collaborators.
type Options struct {
	Store    *queue.Store
	Hub      *pubsub.Hub
	Interval time.Duration
	Ceiling  int
	Metrics  metrics.Metrics
	Notifier worker.Notifier
	Logger   *slog.Logger
}

// NewMonitor builds a stall monitor.
func NewMonitor(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ceiling := opts.Ceiling
	if ceiling < 1 {
		ceiling = 1
	}
	var m metrics.Metrics = opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		store:    opts.Store,
		hub:      opts.Hub,
		interval: interval,
		ceiling:  ceiling,
		metrics:  m,
		notifier: opts.Notifier,
		logger:   logging.NewComponentLogger(logger, "stall-monitor"),
	}
}

// Run scans on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("stall sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep reclaims every currently expired lease and returns how many jobs it
// touched.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	expired, err := m.store.ExpiredLeases(ctx)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range expired {
		outcome, err := m.store.ReclaimExpired(ctx, job.ID, m.ceiling)
		if err != nil {
			m.logger.Error("reclaim failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
			continue
		}
		if outcome == nil {
			// The worker renewed its lease between scan and reclaim.
			continue
		}
		reclaimed++
		m.metrics.IncStalled(string(job.Kind))
		m.report(ctx, outcome)
	}
	return reclaimed, nil
}

func (m *Monitor) report(ctx context.Context, outcome *queue.ReclaimOutcome) {
	job := outcome.Job
	jobLogger := logging.WithJob(m.logger, job.ID, job.OwnerID, string(job.Kind))

	if outcome.DeadLetter {
		m.metrics.IncDeadLettered(string(job.Kind), queue.CodeStalledTooManyTimes)
		jobLogger.Error("job dead-lettered after repeated stalls",
			logging.String(logging.FieldEventType, "job_dead"),
			logging.Int("stalled_count", job.StalledCount),
		)
		if m.hub != nil {
			m.hub.Publish(pubsub.Event{
				JobID:           job.ID,
				Phase:           job.Phase(),
				Status:          string(job.Status),
				ProgressPercent: job.ProgressPercent,
				Message:         "Processing failed",
				ErrorCode:       queue.CodeStalledTooManyTimes,
			})
			m.metrics.IncEventsPublished()
		}
		if m.notifier != nil {
			m.notifier.JobDeadLettered(ctx, job)
		}
		return
	}

	jobLogger.Warn("stalled job returned to queue",
		logging.String(logging.FieldEventType, "job_stalled"),
		logging.Int("stalled_count", job.StalledCount),
	)
	if m.hub != nil {
		m.hub.Publish(pubsub.Event{
			JobID:           job.ID,
			Phase:           job.Phase(),
			Status:          string(job.Status),
			ProgressPercent: job.ProgressPercent,
			Message:         "Recovered after stalled worker",
		})
		m.metrics.IncEventsPublished()
	}
}
