package testsupport

import (
	"context"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued transcription job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, ownerID string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		OwnerID: ownerID,
		Tier:    "standard",
		Kind:    queue.KindTranscribe,
		Payload: queue.Payload{
			ArtifactRef:     "artifacts/" + ownerID + "/sample.wav",
			SizeBytes:       4 << 20,
			DurationSeconds: 90,
			Format:          "wav",
		},
		Priority:    5,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}

// MustClaim claims a job and fails the test when the queue is empty.
func MustClaim(t testing.TB, store *queue.Store) *queue.Job {
	t.Helper()

	job, err := store.Claim(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("store.Claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}
