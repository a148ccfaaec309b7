package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"scribe/internal/queue"
)

type mockJobReader struct {
	jobs    []*queue.Job
	health  queue.HealthSummary
	jobErr  error
	healthE error
}

func (m *mockJobReader) List(context.Context, ...queue.Status) ([]*queue.Job, error) {
	return m.jobs, m.jobErr
}

func (m *mockJobReader) ListByOwner(context.Context, string) ([]*queue.Job, error) {
	return m.jobs, m.jobErr
}

func (m *mockJobReader) GetByID(context.Context, string) (*queue.Job, error) {
	if len(m.jobs) == 0 {
		return nil, m.jobErr
	}
	return m.jobs[0], m.jobErr
}

func (m *mockJobReader) Health(context.Context) (queue.HealthSummary, error) {
	return m.health, m.healthE
}

func sampleJob() *queue.Job {
	now := time.Now().UTC()
	return &queue.Job{
		ID:              "job-1",
		OwnerID:         "owner-1",
		Tier:            "standard",
		Kind:            queue.KindTranscribe,
		Status:          queue.StatusFailed,
		Priority:        5,
		Attempts:        2,
		MaxAttempts:     3,
		ProgressPercent: 40,
		ProgressMessage: "Waiting to retry",
		Payload: queue.Payload{
			ArtifactRef: "artifacts/owner-1/talk.wav",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobService_List(t *testing.T) {
	reader := &mockJobReader{jobs: []*queue.Job{sampleJob()}}
	svc := NewJobService(reader)

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].ID != "job-1" {
		t.Fatalf("unexpected id: %q", got[0].ID)
	}
	if got[0].Status != string(queue.StatusFailed) {
		t.Fatalf("unexpected status: %q", got[0].Status)
	}
	if got[0].Phase != "processing" {
		t.Fatalf("backoff should surface as processing, got %q", got[0].Phase)
	}
	if got[0].CreatedAt == "" || got[0].UpdatedAt == "" {
		t.Fatal("expected timestamps to be formatted")
	}
}

func TestJobService_ListError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewJobService(&mockJobReader{jobErr: boom})

	if _, err := svc.List(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped reader error, got %v", err)
	}
}

func TestJobService_DescribeMissing(t *testing.T) {
	svc := NewJobService(&mockJobReader{})

	got, err := svc.Describe(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing job, got %+v", got)
	}
}

func TestJobService_Health(t *testing.T) {
	svc := NewJobService(&mockJobReader{health: queue.HealthSummary{Total: 3, Queued: 2, Dead: 1}})

	got, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if got.Total != 3 || got.Queued != 2 || got.Dead != 1 {
		t.Fatalf("unexpected health: %+v", got)
	}
}

func TestFromJobNil(t *testing.T) {
	if got := FromJob(nil); got.ID != "" {
		t.Fatalf("expected zero value for nil job, got %+v", got)
	}
	if got := FromJobs(nil); got != nil {
		t.Fatalf("expected nil slice, got %+v", got)
	}
}
