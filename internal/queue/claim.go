package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// claimCandidateWindow bounds how many queued jobs a single Claim call will
// race other workers for before reporting the queue empty.
const claimCandidateWindow = 8

// Claim leases the highest-priority eligible queued job for a worker.
// Multiple workers can call Claim concurrently; the guarded update ensures
// each job is handed to exactly one of them. Returns nil when nothing is
// eligible.
func (s *Store) Claim(ctx context.Context, leaseDuration time.Duration) (*Job, error) {
	now := time.Now()
	nowStr := formatTime(now)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs
         WHERE status = ? AND earliest_available_at <= ?
         ORDER BY priority DESC, earliest_available_at, created_at
         LIMIT ?`,
		StatusQueued,
		nowStr,
		claimCandidateWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range candidates {
		token := uuid.NewString()
		expires := formatTime(now.Add(leaseDuration))

		result, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, lease_token = ?,
                 lease_expires_at = ?, progress_message = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusActive,
			token,
			expires,
			"Claimed by worker",
			nowStr,
			id,
			StatusQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
	return nil, nil
}

// RenewLease extends an active lease. The token guard means a worker that
// already lost its lease to the stall monitor cannot resurrect it. Returns
// false when the lease is no longer held.
func (s *Store) RenewLease(ctx context.Context, jobID, leaseToken string, leaseDuration time.Duration) (bool, error) {
	now := time.Now()
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		formatTime(now.Add(leaseDuration)),
		formatTime(now),
		jobID,
		StatusActive,
		leaseToken,
	)
	if err != nil {
		return false, fmt.Errorf("renew lease for job %s: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReleaseBackoff promotes failed jobs whose retry delay has elapsed back to
// the queued state. Returns how many jobs became eligible.
func (s *Store) ReleaseBackoff(ctx context.Context) (int, error) {
	now := formatTime(time.Now())
	result, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_message = ?, updated_at = ?
         WHERE status = ? AND earliest_available_at <= ?`,
		StatusQueued,
		"Retrying after backoff",
		now,
		StatusFailed,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("release backoff: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
