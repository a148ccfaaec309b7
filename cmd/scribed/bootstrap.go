package main

import (
	"fmt"
	"log/slog"

	"scribe/internal/admission"
	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/metrics"
	"scribe/internal/notifications"
	"scribe/internal/provider"
	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/quota"
	"scribe/internal/stall"
	"scribe/internal/tier"
	"scribe/internal/worker"
)

// build assembles the daemon and its collaborators from validated
// configuration. Nothing is started; callers own the lifecycle.
func build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	catalog, err := tier.NewCatalog(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build tier catalog: %w", err)
	}

	ledger, err := quota.Open(cfg, catalog)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open quota ledger: %w", err)
	}

	registry := provider.NewRegistry(cfg)
	prom := metrics.NewProm("scribe")
	ctrl := admission.NewController(cfg, store, ledger, catalog, prom, logger)
	hub := pubsub.NewHub()
	notifier := notifications.NewWorkerNotifier(notifications.NewService(cfg), logger)

	pool := worker.NewPool(worker.PoolOptions{
		Store:     store,
		Ledger:    ledger,
		Catalog:   catalog,
		Registry:  registry,
		Admission: ctrl,
		Hub:       hub,
		Policy:    worker.NewPolicy(cfg),
		Slots:     cfg.Queue.WorkerSlots,
		Metrics:   prom,
		Notifier:  notifier,
		Logger:    logger,
	})

	monitor := stall.NewMonitor(stall.Options{
		Store:    store,
		Hub:      hub,
		Interval: cfg.Queue.StallTick(),
		Ceiling:  cfg.Queue.StallCeiling,
		Metrics:  prom,
		Notifier: notifier,
		Logger:   logger,
	})

	d, err := daemon.New(daemon.Options{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Ledger:    ledger,
		Catalog:   catalog,
		Admission: ctrl,
		Hub:       hub,
		Pool:      pool,
		Monitor:   monitor,
	})
	if err != nil {
		ledger.Close()
		store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}
