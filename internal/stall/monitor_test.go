package stall_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/pubsub"
	"scribe/internal/queue"
	"scribe/internal/stall"
	"scribe/internal/testsupport"
)

func expireLease(t *testing.T, store *queue.Store, jobID string) {
	t.Helper()
	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(`UPDATE jobs SET lease_expires_at = ? WHERE id = ?`, past, jobID); err != nil {
		t.Fatalf("expire lease: %v", err)
	}
}

func TestSweepRecoversCrashedWorkerJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	monitor := stall.NewMonitor(stall.Options{Store: store, Ceiling: 2})

	testsupport.NewJob(t, store, "alice")
	claimed := testsupport.MustClaim(t, store)
	// Worker crashes before its first heartbeat.
	expireLease(t, store, claimed.ID)

	ctx := context.Background()
	reclaimed, err := monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaim, got %d", reclaimed)
	}

	recovered, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if recovered.Status != queue.StatusQueued || recovered.StalledCount != 1 {
		t.Fatalf("expected requeue with stall count 1, got %#v", recovered)
	}

	// A healthy worker picks it up again and completes it.
	again := testsupport.MustClaim(t, store)
	if err := store.MarkCompleted(ctx, again.ID, again.LeaseToken, "results/out.txt"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	final, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after recovery, got %s", final.Status)
	}
}

func TestSweepDeadLettersAtCeilingAndPublishes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := pubsub.NewHub()
	monitor := stall.NewMonitor(stall.Options{Store: store, Hub: hub, Ceiling: 2})

	job := testsupport.NewJob(t, store, "alice")
	sub := &captureSub{id: "client"}
	hub.Subscribe(sub, job.ID)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		claimed := testsupport.MustClaim(t, store)
		expireLease(t, store, claimed.ID)
		if _, err := monitor.Sweep(ctx); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
	}

	final, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusDead {
		t.Fatalf("expected dead after second stall with ceiling 2, got %s", final.Status)
	}
	if final.ErrorCode != queue.CodeStalledTooManyTimes {
		t.Fatalf("expected stalled_too_many_times, got %q", final.ErrorCode)
	}

	events := sub.received()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != string(queue.StatusQueued) {
		t.Fatalf("first stall must requeue, got %#v", events[0])
	}
	if events[1].Status != string(queue.StatusDead) || events[1].Phase != "failed" {
		t.Fatalf("second stall must dead-letter, got %#v", events[1])
	}
}

func TestSweepIgnoresHealthyLeases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	monitor := stall.NewMonitor(stall.Options{Store: store, Ceiling: 2})

	testsupport.NewJob(t, store, "alice")
	claimed := testsupport.MustClaim(t, store)

	reclaimed, err := monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no reclaims, got %d", reclaimed)
	}

	current, err := store.GetByID(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != queue.StatusActive {
		t.Fatalf("healthy lease must stay active, got %s", current.Status)
	}
}

type captureSub struct {
	id     string
	events []pubsub.Event
}

func (s *captureSub) ID() string { return s.id }

func (s *captureSub) Send(event pubsub.Event) bool {
	s.events = append(s.events, event)
	return true
}

func (s *captureSub) received() []pubsub.Event {
	return append([]pubsub.Event(nil), s.events...)
}
