package queue_test

import (
	"context"
	"testing"
	"time"

	"scribe/internal/queue"
	"scribe/internal/testsupport"
)

func TestExpiredLeasesListsOnlyOverdueActives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewJob(t, store, "owner-a")
	testsupport.NewJob(t, store, "owner-b")
	stalled := testsupport.MustClaim(t, store)
	healthy := testsupport.MustClaim(t, store)
	expireLease(t, store, stalled.ID)

	expired, err := store.ExpiredLeases(context.Background())
	if err != nil {
		t.Fatalf("ExpiredLeases failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stalled.ID {
		t.Fatalf("unexpected expired set: %#v", expired)
	}
	_ = healthy
}

func TestReclaimExpiredRequeuesAndRefundsAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewJob(t, store, "owner")
	job := testsupport.MustClaim(t, store)
	expireLease(t, store, job.ID)

	outcome, err := store.ReclaimExpired(context.Background(), job.ID, 2)
	if err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if outcome == nil || outcome.DeadLetter {
		t.Fatalf("expected requeue outcome, got %#v", outcome)
	}
	recovered := outcome.Job
	if recovered.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", recovered.Status)
	}
	if recovered.StalledCount != 1 {
		t.Fatalf("expected stall counted, got %d", recovered.StalledCount)
	}
	if recovered.Attempts != 0 {
		t.Fatalf("expected attempt refunded, got %d", recovered.Attempts)
	}
	if recovered.LeaseToken != "" || recovered.LeaseExpiresAt != nil {
		t.Fatalf("expected lease cleared: %#v", recovered)
	}

	// The reclaimed job is immediately claimable again.
	again := testsupport.MustClaim(t, store)
	if again.ID != job.ID {
		t.Fatalf("expected same job reclaimed, got %s", again.ID)
	}
}

func TestReclaimExpiredDeadLettersAtCeiling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewJob(t, store, "owner")
	ctx := context.Background()

	const ceiling = 2
	for i := 0; i < ceiling; i++ {
		job := testsupport.MustClaim(t, store)
		expireLease(t, store, job.ID)
		outcome, err := store.ReclaimExpired(ctx, job.ID, ceiling)
		if err != nil {
			t.Fatalf("ReclaimExpired failed: %v", err)
		}
		if outcome == nil {
			t.Fatal("expected reclaim outcome")
		}
		if i < ceiling-1 && outcome.DeadLetter {
			t.Fatalf("dead-lettered before ceiling on stall %d", i+1)
		}
		if i == ceiling-1 && !outcome.DeadLetter {
			t.Fatal("expected dead letter at stall ceiling")
		}
	}

	jobs, err := store.List(ctx, queue.StatusDead)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 dead job, got %d", len(jobs))
	}
	if jobs[0].ErrorCode != queue.CodeStalledTooManyTimes {
		t.Fatalf("expected stalled_too_many_times code, got %q", jobs[0].ErrorCode)
	}
	if jobs[0].StalledCount != ceiling {
		t.Fatalf("expected stall count %d, got %d", ceiling, jobs[0].StalledCount)
	}
}

func TestReclaimExpiredIgnoresLiveLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.NewJob(t, store, "owner")
	job := testsupport.MustClaim(t, store)

	outcome, err := store.ReclaimExpired(context.Background(), job.ID, 2)
	if err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected nil outcome for live lease, got %#v", outcome)
	}

	current, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != queue.StatusActive || current.LeaseToken != job.LeaseToken {
		t.Fatalf("live lease must be untouched: %#v", current)
	}
}

func TestStallsDoNotConsumeRetryBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created, err := store.NewJob(ctx, queue.NewJobParams{
		OwnerID:     "owner",
		Tier:        "free",
		Kind:        queue.KindTranscribe,
		Payload:     queue.Payload{ArtifactRef: "a/x.wav", Format: "wav"},
		Priority:    1,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}

	// One stall with a generous ceiling leaves the single attempt intact.
	job := testsupport.MustClaim(t, store)
	expireLease(t, store, job.ID)
	if _, err := store.ReclaimExpired(ctx, job.ID, 5); err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}

	job = testsupport.MustClaim(t, store)
	if job.Attempts != 1 {
		t.Fatalf("expected attempt 1 after stall refund, got %d", job.Attempts)
	}
	status, err := store.MarkRetryable(ctx, job.ID, job.LeaseToken, time.Minute, "boom")
	if err != nil {
		t.Fatalf("MarkRetryable failed: %v", err)
	}
	if status != queue.StatusDead {
		t.Fatalf("expected budget of one attempt to be exhausted, got %s", status)
	}
	_ = created
}
