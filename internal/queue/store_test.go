package queue_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/queue"
	"scribe/internal/testsupport"
)

func bumpSchemaVersion(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`UPDATE schema_version SET version = version + 1`); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
}

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.NewJob(ctx, queue.NewJobParams{
		OwnerID: "owner-1",
		Tier:    "standard",
		Kind:    queue.KindTranscribe,
		Payload: queue.Payload{
			ArtifactRef:     "artifacts/owner-1/interview.wav",
			SizeBytes:       1 << 20,
			DurationSeconds: 300,
			Format:          "wav",
		},
		Priority:    5,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}
	if job.Attempts != 0 || job.StalledCount != 0 {
		t.Fatalf("expected fresh counters, got attempts=%d stalled=%d", job.Attempts, job.StalledCount)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Payload.ArtifactRef != job.Payload.ArtifactRef {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if fetched.Priority != 5 || fetched.MaxAttempts != 3 {
		t.Fatalf("expected frozen priority and attempt budget, got %#v", fetched)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	store.Close()

	bumpSchemaVersion(t, path)

	if _, err := queue.OpenPath(path); err == nil {
		t.Fatal("expected schema mismatch error")
	}
}

func TestNewJobValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewJob(ctx, queue.NewJobParams{Tier: "free", Kind: queue.KindTranscribe, MaxAttempts: 3}); err == nil {
		t.Fatal("expected error when owner missing")
	}
	if _, err := store.NewJob(ctx, queue.NewJobParams{OwnerID: "o", Tier: "free", Kind: "remaster", MaxAttempts: 3}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := store.NewJob(ctx, queue.NewJobParams{OwnerID: "o", Tier: "free", Kind: queue.KindSummarize}); err == nil {
		t.Fatal("expected error for zero attempt budget")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.GetByID(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %#v", job)
	}
}

func TestListByOwnerAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.NewJob(t, store, "alice")
	}
	bob := testsupport.NewJob(t, store, "bob")

	aliceJobs, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(aliceJobs) != 3 {
		t.Fatalf("expected 3 jobs for alice, got %d", len(aliceJobs))
	}

	claimed, err := store.Claim(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claim")
	}

	active, err := store.List(ctx, queue.StatusActive)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != claimed.ID {
		t.Fatalf("unexpected active list: %#v", active)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(all))
	}
	_ = bob
}

func TestHealthSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		testsupport.NewJob(t, store, fmt.Sprintf("owner-%d", i))
	}
	claimed := testsupport.MustClaim(t, store)
	if err := store.MarkCompleted(ctx, claimed.ID, claimed.LeaseToken, "results/out.txt"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Queued != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

func TestClearAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	queued := testsupport.NewJob(t, store, "owner-queued")
	claimed := testsupport.MustClaim(t, store)
	if err := store.MarkCompleted(ctx, claimed.ID, claimed.LeaseToken, "results/a.txt"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	cleared, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared)
	}

	if err := store.Remove(ctx, queued.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Remove(ctx, queued.ID); err == nil {
		t.Fatal("expected error removing missing job")
	}

	active := testsupport.NewJob(t, store, "owner-active")
	if got := testsupport.MustClaim(t, store); got.ID != active.ID {
		t.Fatalf("claimed unexpected job %s", got.ID)
	}
	if err := store.Remove(ctx, active.ID); err == nil {
		t.Fatal("expected error removing active job")
	}
}

func TestPhaseMapping(t *testing.T) {
	cases := []struct {
		status queue.Status
		phase  string
	}{
		{queue.StatusQueued, "processing"},
		{queue.StatusActive, "processing"},
		{queue.StatusFailed, "processing"},
		{queue.StatusCompleted, "completed"},
		{queue.StatusDead, "failed"},
	}
	for _, tc := range cases {
		job := &queue.Job{Status: tc.status}
		if got := job.Phase(); got != tc.phase {
			t.Fatalf("%s: expected phase %s, got %s", tc.status, tc.phase, got)
		}
	}
}
