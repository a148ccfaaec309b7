package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost is returned when a worker-side transition finds its lease is
// no longer valid. The job was reclaimed by the stall monitor; whatever the
// worker produced must be discarded.
var ErrLeaseLost = errors.New("job lease no longer held")

// MarkCompleted records a successful result and releases the lease.
func (s *Store) MarkCompleted(ctx context.Context, jobID, leaseToken, resultRef string) error {
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, result_ref = ?, progress_percent = 100,
             progress_message = ?, lease_token = NULL, lease_expires_at = NULL,
             error_code = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		StatusCompleted,
		nullableString(resultRef),
		"Completed",
		now,
		jobID,
		StatusActive,
		leaseToken,
	)
	if err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}
	return requireLease(result)
}

// MarkRetryable records a retryable failure. When attempts remain the job
// moves to failed with a backoff window; otherwise it is dead-lettered with
// the attempts_exhausted code. Returns the resulting status.
func (s *Store) MarkRetryable(ctx context.Context, jobID, leaseToken string, retryDelay time.Duration, message string) (Status, error) {
	now := time.Now()
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = CASE WHEN attempts >= max_attempts THEN ? ELSE ? END,
             error_code = CASE WHEN attempts >= max_attempts THEN ? ELSE error_code END,
             error_message = ?,
             earliest_available_at = CASE WHEN attempts >= max_attempts THEN earliest_available_at ELSE ? END,
             progress_message = CASE WHEN attempts >= max_attempts THEN ? ELSE ? END,
             lease_token = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		StatusDead,
		StatusFailed,
		CodeAttemptsExhausted,
		nullableString(message),
		formatTime(now.Add(retryDelay)),
		"Moved to dead letter",
		"Waiting to retry",
		formatTime(now),
		jobID,
		StatusActive,
		leaseToken,
	)
	if err != nil {
		return "", fmt.Errorf("mark job %s retryable: %w", jobID, err)
	}
	if err := requireLease(result); err != nil {
		return "", err
	}

	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job %s disappeared during retryable transition", jobID)
	}
	return job.Status, nil
}

// MarkFatal dead-letters a job immediately regardless of remaining attempts.
func (s *Store) MarkFatal(ctx context.Context, jobID, leaseToken, code, message string) error {
	if code == "" {
		code = CodeProviderFatal
	}
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_code = ?, error_message = ?, progress_message = ?,
             lease_token = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		StatusDead,
		code,
		nullableString(message),
		"Moved to dead letter",
		now,
		jobID,
		StatusActive,
		leaseToken,
	)
	if err != nil {
		return fmt.Errorf("mark job %s fatal: %w", jobID, err)
	}
	return requireLease(result)
}

// UpdateProgress records worker progress while a lease is held.
func (s *Store) UpdateProgress(ctx context.Context, jobID, leaseToken string, percent float64, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		percent,
		nullableString(message),
		formatTime(time.Now()),
		jobID,
		StatusActive,
		leaseToken,
	)
	if err != nil {
		return fmt.Errorf("update progress for job %s: %w", jobID, err)
	}
	return requireLease(result)
}

// RetryDead re-queues a dead-lettered job with a fresh attempt budget.
// Operator action; not part of automatic retry.
func (s *Store) RetryDead(ctx context.Context, jobID string) error {
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = 0, stalled_count = 0,
             error_code = NULL, error_message = NULL,
             earliest_available_at = ?, progress_percent = 0,
             progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusQueued,
		now,
		"Re-queued by operator",
		now,
		jobID,
		StatusDead,
	)
	if err != nil {
		return fmt.Errorf("retry dead job %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s is not in the dead-letter queue", jobID)
	}
	return nil
}

// ResetOrphanedActive returns all active jobs to queued without counting a
// stall. Called once on daemon startup, before any worker runs, to recover
// jobs orphaned by an unclean shutdown.
func (s *Store) ResetOrphanedActive(ctx context.Context) (int, error) {
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
             lease_token = NULL, lease_expires_at = NULL,
             progress_message = ?, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		"Recovered after restart",
		now,
		StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphaned jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func requireLease(result interface{ RowsAffected() (int64, error) }) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}
