package api

import (
	"scribe/internal/queue"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}

	dto := Job{
		ID:           job.ID,
		OwnerID:      job.OwnerID,
		Tier:         job.Tier,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Phase:        job.Phase(),
		Priority:     job.Priority,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		StalledCount: job.StalledCount,
		Progress: JobProgress{
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		ArtifactRef:  job.Payload.ArtifactRef,
		ResultRef:    job.ResultRef,
		SourceJobID:  job.Payload.SourceJobID,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of queue records.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromHealth converts the store's health summary.
func FromHealth(summary queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:     summary.Total,
		Queued:    summary.Queued,
		Active:    summary.Active,
		Backoff:   summary.Backoff,
		Completed: summary.Completed,
		Dead:      summary.Dead,
	}
}
