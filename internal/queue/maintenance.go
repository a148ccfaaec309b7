package queue

import (
	"context"
	"fmt"
	"time"
)

// ReclaimOutcome describes what happened to a single expired lease.
type ReclaimOutcome struct {
	Job        *Job
	DeadLetter bool
}

// ExpiredLeases lists active jobs whose lease expiry has passed.
func (s *Store) ExpiredLeases(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?
         ORDER BY lease_expires_at`,
		StatusActive,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired leases: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReclaimExpired recovers a single job whose lease has expired. The job is
// re-queued with its stall counter bumped, unless the bump reaches the
// ceiling, in which case it is dead-lettered. The reclaim refunds the
// attempt the crashed worker started, so stalls and failures draw from
// separate budgets. Returns nil when the lease turned out to still be live.
func (s *Store) ReclaimExpired(ctx context.Context, jobID string, stallCeiling int) (*ReclaimOutcome, error) {
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = CASE WHEN stalled_count + 1 >= ? THEN ? ELSE ? END,
             stalled_count = stalled_count + 1,
             attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
             error_code = CASE WHEN stalled_count + 1 >= ? THEN ? ELSE error_code END,
             error_message = CASE WHEN stalled_count + 1 >= ? THEN ? ELSE error_message END,
             progress_message = CASE WHEN stalled_count + 1 >= ? THEN ? ELSE ? END,
             lease_token = NULL, lease_expires_at = NULL,
             earliest_available_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		stallCeiling,
		StatusDead,
		StatusQueued,
		stallCeiling,
		CodeStalledTooManyTimes,
		stallCeiling,
		"Worker stalled repeatedly",
		stallCeiling,
		"Moved to dead letter",
		"Recovered after stalled worker",
		now,
		now,
		jobID,
		StatusActive,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("reclaim job %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s disappeared during reclaim", jobID)
	}
	return &ReclaimOutcome{Job: job, DeadLetter: job.Status == StatusDead}, nil
}

// ClearCompleted removes completed jobs. Returns how many were deleted.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	return s.deleteByStatus(ctx, StatusCompleted)
}

// ClearDead removes dead-lettered jobs. Returns how many were deleted.
func (s *Store) ClearDead(ctx context.Context) (int, error) {
	return s.deleteByStatus(ctx, StatusDead)
}

func (s *Store) deleteByStatus(ctx context.Context, status Status) (int, error) {
	result, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("clear %s jobs: %w", status, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Remove deletes a single job unless it is currently leased.
func (s *Store) Remove(ctx context.Context, jobID string) error {
	result, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE id = ? AND status != ?`,
		jobID,
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found or currently active", jobID)
	}
	return nil
}
