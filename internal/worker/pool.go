package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/admission"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/provider"
	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/quota"
	"scribe/internal/tier"
)

const reconcileInterval = time.Minute

// Notifier receives terminal job outcomes. The daemon wires the ntfy service
// here; tests pass nil.
type Notifier interface {
	JobCompleted(ctx context.Context, job *queue.Job)
	JobDeadLettered(ctx context.Context, job *queue.Job)
}

// Pool runs a fixed number of worker slots. Each slot repeatedly claims the
// highest-priority eligible job, executes it against the tier's provider
// route under a heartbeat, and reports the terminal result back to the store.
type Pool struct {
	store     *queue.Store
	ledger    *quota.Ledger
	catalog   *tier.Catalog
	registry  *provider.Registry
	admission *admission.Controller
	hub       *pubsub.Hub
	policy    Policy
	slots     int
	metrics   metrics.Metrics
	notifier  Notifier
	logger    *slog.Logger

	wg sync.WaitGroup
}

// PoolOptions bundles the pool's collaborators.
type PoolOptions struct {
	Store     *queue.Store
	Ledger    *quota.Ledger
	Catalog   *tier.Catalog
	Registry  *provider.Registry
	Admission *admission.Controller
	Hub       *pubsub.Hub
	Policy    Policy
	Slots     int
	Metrics   metrics.Metrics
	Notifier  Notifier
	Logger    *slog.Logger
}

// NewPool builds a worker pool. Slots defaults to one; metrics defaults to
// Noop.
func NewPool(opts PoolOptions) *Pool {
	slots := opts.Slots
	if slots < 1 {
		slots = 1
	}
	var m metrics.Metrics = opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		store:     opts.Store,
		ledger:    opts.Ledger,
		catalog:   opts.Catalog,
		registry:  opts.Registry,
		admission: opts.Admission,
		hub:       opts.Hub,
		policy:    opts.Policy,
		slots:     slots,
		metrics:   m,
		notifier:  opts.Notifier,
		logger:    logging.NewComponentLogger(logger, "worker"),
	}
}

// Start launches the slot loops and the quota reconciliation loop. They run
// until the context is cancelled; Wait blocks until all have exited.
func (p *Pool) Start(ctx context.Context) {
	for slot := 0; slot < p.slots; slot++ {
		p.wg.Add(1)
		go func(slot int) {
			defer p.wg.Done()
			p.runSlot(ctx, slot)
		}(slot)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReconcile(ctx)
	}()
}

// Wait blocks until every slot has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	logger := p.logger.With(logging.Int("slot", slot))
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.store.ReleaseBackoff(ctx); err != nil && ctx.Err() == nil {
			logger.Error("release backoff failed", logging.Error(err))
		}

		job, err := p.store.Claim(ctx, p.policy.LeaseDuration)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", logging.Error(err))
			if !sleepCtx(ctx, p.policy.ErrorRetryDelay) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.policy.PollInterval) {
				return
			}
			continue
		}

		p.processJob(ctx, logger, job)
	}
}

func (p *Pool) runReconcile(ctx context.Context) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.ledger != nil {
				if flushed := p.ledger.Reconcile(ctx); flushed > 0 {
					p.logger.Info("reconciled deferred quota commits", logging.Int("flushed", flushed))
				}
			}
			p.sampleQueueDepth(ctx)
		}
	}
}

func (p *Pool) sampleQueueDepth(ctx context.Context) {
	stats, err := p.store.Stats(ctx)
	if err != nil {
		p.logger.Warn("queue depth sample failed", logging.Error(err))
		return
	}
	for _, status := range queue.AllStatuses() {
		p.metrics.SetQueueDepth(string(status), float64(stats[status]))
	}
}

func (p *Pool) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	jobLogger := logging.WithJob(logger, job.ID, job.OwnerID, string(job.Kind))
	p.metrics.IncClaimed(string(job.Kind))
	p.publish(job, queue.StatusActive, job.ProgressPercent, "Processing started", "")
	jobLogger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_claimed"),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	started := time.Now()
	result, execErr := p.executeWithHeartbeat(ctx, jobLogger, job)

	if execErr != nil && errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
		// Shutdown. Leave the job active; startup recovery or lease expiry
		// returns it to the queue.
		jobLogger.Debug("job interrupted by shutdown")
		return
	}

	if execErr == nil {
		p.finishCompleted(ctx, jobLogger, job, result, time.Since(started))
		return
	}
	if provider.IsFatal(execErr) {
		p.finishFatal(ctx, jobLogger, job, execErr)
		return
	}
	p.finishRetryable(ctx, jobLogger, job, execErr)
}

// executeWithHeartbeat runs the provider route while a background goroutine
// renews the lease. A failed renewal means the stall monitor already took the
// job back, so execution is cancelled and the result discarded.
func (p *Pool) executeWithHeartbeat(ctx context.Context, logger *slog.Logger, job *queue.Job) (*provider.Result, error) {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		ticker := time.NewTicker(p.policy.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-execCtx.Done():
				return
			case <-ticker.C:
				ok, err := p.store.RenewLease(execCtx, job.ID, job.LeaseToken, p.policy.LeaseDuration)
				if err != nil {
					if execCtx.Err() == nil {
						logger.Error("lease renewal failed", logging.Error(err))
					}
					continue
				}
				if !ok {
					logger.Warn("lease lost, abandoning execution")
					cancel()
					return
				}
			}
		}
	}()

	result, err := p.execute(execCtx, logger, job)
	cancel()
	hbWG.Wait()
	return result, err
}

// execute walks the tier's provider route. Fatal errors stop immediately;
// retryable and unavailable errors fall through to the next provider in the
// route, with chunking applied per provider when the payload exceeds its
// per-call limits.
func (p *Pool) execute(ctx context.Context, logger *slog.Logger, job *queue.Job) (*provider.Result, error) {
	limits, ok := p.catalog.Lookup(job.Tier)
	if !ok {
		// Tier was removed from configuration after the job was accepted.
		limits = p.catalog.LimitsFor(job.OwnerID)
	}
	route, err := p.registry.Route(limits, string(job.Kind))
	if err != nil {
		return nil, provider.Wrap(provider.ErrFatal, "", "route", err.Error(), nil)
	}

	var lastErr error
	for _, prov := range route {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		strat := selectStrategy(prov, job, p.policy.ChunkParallelism)
		chunked := false
		if _, isChunked := strat.(chunkedStrategy); isChunked {
			chunked = true
			logger.Info("chunking payload for provider",
				logging.String("provider", prov.Name()),
			)
		}

		result, err := strat.run(ctx, prov, job, func(fraction float64) {
			p.reportProgress(ctx, job, fraction)
		})
		if err == nil {
			logger.Info("provider call succeeded",
				logging.String("provider", prov.Name()),
				logging.Bool("chunked", chunked),
			)
			return result, nil
		}
		if provider.IsFatal(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Warn("provider attempt failed, trying fallback",
			logging.String("provider", prov.Name()),
			logging.Error(err),
		)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = provider.Wrap(provider.ErrRetryable, "", "route", "no provider produced a result", nil)
	}
	return nil, lastErr
}

func (p *Pool) reportProgress(ctx context.Context, job *queue.Job, fraction float64) {
	percent := fraction * 100
	if err := p.store.UpdateProgress(ctx, job.ID, job.LeaseToken, percent, "Processing"); err != nil {
		return
	}
	p.publish(job, queue.StatusActive, percent, "Processing", "")
}

func (p *Pool) finishCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job, result *provider.Result, elapsed time.Duration) {
	resultRef := ""
	if result != nil {
		resultRef = result.OutputRef
	}
	if err := p.store.MarkCompleted(ctx, job.ID, job.LeaseToken, resultRef); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			logger.Warn("completion discarded, lease was reclaimed")
			return
		}
		logger.Error("failed to persist completion", logging.Error(err))
		return
	}

	units := quota.UnitsFor(string(job.Kind), job.Payload.DurationSeconds)
	if p.ledger != nil {
		if err := p.ledger.CommitOrDefer(ctx, job.ID, job.OwnerID, string(job.Kind), units); err != nil {
			logger.Warn("quota commit deferred", logging.Error(err))
		}
	}

	p.metrics.IncCompleted(string(job.Kind))
	p.metrics.ObserveJobDuration(string(job.Kind), elapsed.Seconds())
	p.publish(job, queue.StatusCompleted, 100, "Completed", "")
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Duration("duration", elapsed),
	)

	completed, err := p.store.GetByID(ctx, job.ID)
	if err != nil || completed == nil {
		return
	}
	if p.notifier != nil {
		p.notifier.JobCompleted(ctx, completed)
	}
	p.enqueueFollowUps(ctx, logger, completed)
}

// enqueueFollowUps fans a finished transcription out into its requested
// analysis jobs. Follow-up rejections (quota) are logged, never retried; the
// owner can resubmit the analysis directly.
func (p *Pool) enqueueFollowUps(ctx context.Context, logger *slog.Logger, parent *queue.Job) {
	if p.admission == nil || parent.Kind != queue.KindTranscribe {
		return
	}
	for _, kind := range parent.Payload.FollowUps {
		child, err := p.admission.SubmitFollowUp(ctx, parent, kind)
		if err != nil {
			logger.Warn("follow-up rejected",
				logging.String("follow_up_kind", string(kind)),
				logging.Error(err),
			)
			continue
		}
		logger.Info("follow-up enqueued",
			logging.String("follow_up_kind", string(kind)),
			logging.String("follow_up_job", child.ID),
		)
	}
}

func (p *Pool) finishFatal(ctx context.Context, logger *slog.Logger, job *queue.Job, execErr error) {
	if err := p.store.MarkFatal(ctx, job.ID, job.LeaseToken, queue.CodeProviderFatal, execErr.Error()); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			logger.Warn("fatal result discarded, lease was reclaimed")
			return
		}
		logger.Error("failed to persist fatal failure", logging.Error(err))
		return
	}
	p.metrics.IncDeadLettered(string(job.Kind), queue.CodeProviderFatal)
	p.publish(job, queue.StatusDead, job.ProgressPercent, "Processing failed", queue.CodeProviderFatal)
	logger.Error("job dead-lettered on fatal error",
		logging.String(logging.FieldEventType, "job_dead"),
		logging.Error(execErr),
	)
	p.notifyDead(ctx, job.ID)
}

func (p *Pool) finishRetryable(ctx context.Context, logger *slog.Logger, job *queue.Job, execErr error) {
	delay := p.policy.RetryDelay(job.Attempts)
	status, err := p.store.MarkRetryable(ctx, job.ID, job.LeaseToken, delay, execErr.Error())
	if err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			logger.Warn("retry result discarded, lease was reclaimed")
			return
		}
		logger.Error("failed to persist retryable failure", logging.Error(err))
		return
	}

	if status == queue.StatusDead {
		p.metrics.IncDeadLettered(string(job.Kind), queue.CodeAttemptsExhausted)
		p.publish(job, queue.StatusDead, job.ProgressPercent, "Processing failed", queue.CodeAttemptsExhausted)
		logger.Error("job dead-lettered, attempts exhausted",
			logging.String(logging.FieldEventType, "job_dead"),
			logging.Int("attempts", job.Attempts),
			logging.Error(execErr),
		)
		p.notifyDead(ctx, job.ID)
		return
	}

	p.metrics.IncRetried(string(job.Kind))
	// Retries stay "processing" from the owner's point of view.
	p.publish(job, queue.StatusFailed, job.ProgressPercent, "Waiting to retry", "")
	logger.Warn("job scheduled for retry",
		logging.String(logging.FieldEventType, "job_retry"),
		logging.Int("attempt", job.Attempts),
		logging.Duration("delay", delay),
		logging.Error(execErr),
	)
}

func (p *Pool) notifyDead(ctx context.Context, jobID string) {
	if p.notifier == nil {
		return
	}
	dead, err := p.store.GetByID(ctx, jobID)
	if err != nil || dead == nil {
		return
	}
	p.notifier.JobDeadLettered(ctx, dead)
}

func (p *Pool) publish(job *queue.Job, status queue.Status, percent float64, message, errorCode string) {
	if p.hub == nil {
		return
	}
	snapshot := *job
	snapshot.Status = status
	p.hub.Publish(pubsub.Event{
		JobID:           job.ID,
		Phase:           snapshot.Phase(),
		Status:          string(status),
		ProgressPercent: percent,
		Message:         message,
		ErrorCode:       errorCode,
	})
	p.metrics.IncEventsPublished()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
