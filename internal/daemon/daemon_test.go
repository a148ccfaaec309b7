package daemon

import (
	"context"
	"testing"

	"scribe/internal/admission"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/provider"
	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/quota"
	"scribe/internal/testsupport"
	"scribe/internal/tier"
	"scribe/internal/worker"
)

type fixture struct {
	daemon *Daemon
	store  *queue.Store
	ledger *quota.Ledger
	hub    *pubsub.Hub
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	catalog, err := tier.NewCatalog(cfg)
	if err != nil {
		t.Fatalf("tier.NewCatalog: %v", err)
	}
	ledger, err := quota.Open(cfg, catalog)
	if err != nil {
		t.Fatalf("quota.Open: %v", err)
	}
	t.Cleanup(func() {
		ledger.Close()
	})
	registry := provider.NewRegistry(cfg)
	ctrl := admission.NewController(cfg, store, ledger, catalog, nil, logging.NewNop())
	hub := pubsub.NewHub()
	pool := worker.NewPool(worker.PoolOptions{
		Store:     store,
		Ledger:    ledger,
		Catalog:   catalog,
		Registry:  registry,
		Admission: ctrl,
		Hub:       hub,
		Policy:    worker.NewPolicy(cfg),
	})
	d, err := New(Options{
		Config:    cfg,
		Logger:    logging.NewNop(),
		Store:     store,
		Ledger:    ledger,
		Catalog:   catalog,
		Admission: ctrl,
		Hub:       hub,
		Pool:      pool,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return &fixture{daemon: d, store: store, ledger: ledger, hub: hub}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fx := newFixture(t, cfg)

	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fx.daemon.Stop()

	if fx.daemon.Addr() == "" {
		t.Fatal("expected api listener address after start")
	}

	status := fx.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.PID == 0 {
		t.Fatal("expected pid in status")
	}

	fx.daemon.Stop()
	if fx.daemon.Status(ctx).Running {
		t.Fatal("expected stopped status")
	}
}

func TestDaemonSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newFixture(t, cfg)
	second := newFixture(t, cfg)

	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.daemon.Stop()

	if err := second.daemon.Start(ctx); err == nil {
		second.daemon.Stop()
		t.Fatal("expected second instance to be refused while lock is held")
	}
}

func TestDaemonQueueMaintenance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fx := newFixture(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, fx.store, "owner-1")
	claimed := testsupport.MustClaim(t, fx.store)
	if err := fx.store.MarkFatal(ctx, claimed.ID, claimed.LeaseToken, "", "provider refused"); err != nil {
		t.Fatalf("MarkFatal: %v", err)
	}

	if err := fx.daemon.RetryDead(ctx, job.ID); err != nil {
		t.Fatalf("RetryDead: %v", err)
	}
	requeued, err := fx.store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if requeued.Status != queue.StatusQueued {
		t.Fatalf("expected requeued job, got %s", requeued.Status)
	}

	if err := fx.daemon.Remove(ctx, job.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got, err := fx.store.GetByID(ctx, job.ID); err != nil || got != nil {
		t.Fatalf("expected job removed, got %+v (err %v)", got, err)
	}
}

func TestDaemonQuotaUsage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fx := newFixture(t, cfg)
	ctx := context.Background()

	if err := fx.ledger.Commit(ctx, "job-1", "owner-1", "transcribe", 1.5); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	usage, err := fx.daemon.QuotaUsage(ctx, "owner-1")
	if err != nil {
		t.Fatalf("QuotaUsage: %v", err)
	}
	if usage.TranscriptionHoursUsed != 1.5 {
		t.Fatalf("unexpected hours used: %v", usage.TranscriptionHoursUsed)
	}
	if usage.Tier == "" || usage.Period == "" {
		t.Fatalf("expected tier and period, got %+v", usage)
	}
}
