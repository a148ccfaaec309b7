package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scribe/internal/admission"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/quota"
	"scribe/internal/stall"
	"scribe/internal/tier"
	"scribe/internal/worker"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file in the state directory.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	ledger    *quota.Ledger
	catalog   *tier.Catalog
	admission *admission.Controller
	hub       *pubsub.Hub
	pool      *worker.Pool
	monitor   *stall.Monitor

	apiServer *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Options bundles the daemon's collaborators.
type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *queue.Store
	Ledger    *quota.Ledger
	Catalog   *tier.Catalog
	Admission *admission.Controller
	Hub       *pubsub.Hub
	Pool      *worker.Pool
	Monitor   *stall.Monitor
}

// Status represents daemon runtime information.
type Status struct {
	Running             bool
	PID                 int
	WorkerSlots         int
	Queue               queue.HealthSummary
	PendingQuotaCommits int
	QueueDBPath         string
	LockFilePath        string
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Logger == nil || opts.Pool == nil {
		return nil, errors.New("daemon requires config, store, logger, and worker pool")
	}

	lockPath := filepath.Join(opts.Config.Paths.StateDir, "scribed.lock")
	d := &Daemon{
		cfg:       opts.Config,
		logger:    logging.NewComponentLogger(opts.Logger, "daemon"),
		store:     opts.Store,
		ledger:    opts.Ledger,
		catalog:   opts.Catalog,
		admission: opts.Admission,
		hub:       opts.Hub,
		pool:      opts.Pool,
		monitor:   opts.Monitor,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	server, err := newAPIServer(opts.Config, d, opts.Logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server
	return d, nil
}

// Start acquires the daemon lock, requeues jobs orphaned by a previous crash,
// and launches the worker pool, stall monitor, and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	recovered, err := d.store.ResetOrphanedActive(d.ctx)
	if err != nil {
		d.releaseLock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("reset orphaned jobs: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("requeued jobs orphaned by previous shutdown", logging.Int("count", recovered))
	}

	d.pool.Start(d.ctx)
	if d.monitor != nil {
		go d.monitor.Run(d.ctx)
	}
	if err := d.apiServer.start(d.ctx); err != nil {
		d.cancel()
		d.pool.Wait()
		d.releaseLock()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("scribe daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock. In-flight
// jobs keep their active record; the startup reset or the stall monitor
// returns them to the queue.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pool.Wait()
	d.apiServer.stop()
	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var firstErr error
	if d.ledger != nil {
		if err := d.ledger.Close(); err != nil {
			firstErr = err
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Addr returns the API listener address once the daemon is running.
func (d *Daemon) Addr() string {
	if d.apiServer == nil {
		return ""
	}
	return d.apiServer.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("queue health query failed", logging.Error(err))
	}
	pending := 0
	if d.ledger != nil {
		pending = d.ledger.PendingCommits()
	}
	return Status{
		Running:             d.running.Load(),
		PID:                 os.Getpid(),
		WorkerSlots:         d.cfg.Queue.WorkerSlots,
		Queue:               summary,
		PendingQuotaCommits: pending,
		QueueDBPath:         d.store.Path(),
		LockFilePath:        d.lockPath,
	}
}

// RetryDead returns a dead job to the queue with a fresh retry budget.
func (d *Daemon) RetryDead(ctx context.Context, jobID string) error {
	return d.store.RetryDead(ctx, jobID)
}

// Remove deletes a job that is not currently being processed.
func (d *Daemon) Remove(ctx context.Context, jobID string) error {
	return d.store.Remove(ctx, jobID)
}

// ClearCompleted removes completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearDead removes dead-lettered jobs.
func (d *Daemon) ClearDead(ctx context.Context) (int, error) {
	return d.store.ClearDead(ctx)
}

// QuotaUsage reports an owner's consumption for the current period.
func (d *Daemon) QuotaUsage(ctx context.Context, ownerID string) (quota.Usage, error) {
	if d.ledger == nil || d.catalog == nil {
		return quota.Usage{}, errors.New("quota ledger unavailable")
	}
	return d.ledger.UsageFor(ctx, ownerID)
}

// TestNotification sends a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
