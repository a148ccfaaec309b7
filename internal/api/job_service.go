package api

import (
	"context"

	"scribe/internal/queue"
)

// JobReader abstracts the queue persistence interactions needed for API
// queries.
type JobReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*queue.Job, error)
	GetByID(ctx context.Context, id string) (*queue.Job, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// JobService exposes read-only job queries returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// ListByOwner returns every job submitted by one owner.
func (s *JobService) ListByOwner(ctx context.Context, ownerID string) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job. Returns nil when no job exists.
func (s *JobService) Describe(ctx context.Context, id string) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Health returns aggregate queue diagnostics.
func (s *JobService) Health(ctx context.Context) (QueueHealth, error) {
	if s == nil || s.store == nil {
		return QueueHealth{}, nil
	}
	summary, err := s.store.Health(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	return FromHealth(summary), nil
}
