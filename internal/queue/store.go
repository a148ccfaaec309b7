package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJobParams carries everything admission decided about an accepted job.
// Priority and tier are frozen here; later tier changes do not touch jobs
// already in the queue.
type NewJobParams struct {
	OwnerID     string
	Tier        string
	Kind        Kind
	Payload     Payload
	Priority    int
	MaxAttempts int
}

// NewJob inserts an accepted job in the queued state.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if params.OwnerID == "" {
		return nil, errors.New("owner id is required")
	}
	if _, ok := ParseKind(string(params.Kind)); !ok {
		return nil, fmt.Errorf("unknown job kind %q", params.Kind)
	}
	if params.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}

	payloadJSON, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()
	now := formatTime(time.Now())

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, owner_id, tier, kind, payload_json, status, priority,
            attempts, max_attempts, stalled_count, earliest_available_at,
            progress_percent, progress_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, 0, ?, ?, ?)`,
		id,
		params.OwnerID,
		params.Tier,
		params.Kind,
		string(payloadJSON),
		StatusQueued,
		params.Priority,
		params.MaxAttempts,
		now,
		"Waiting for a worker",
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when no job exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// ListByOwner returns an owner's jobs ordered by creation time.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = ? ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs by owner: %w", err)
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

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusActive:
			health.Active += count
		case StatusFailed:
			health.Backoff += count
		case StatusCompleted:
			health.Completed += count
		case StatusDead:
			health.Dead += count
		}
	}
	return health, nil
}

const jobColumns = "id, owner_id, tier, kind, payload_json, status, priority, attempts, max_attempts, stalled_count, lease_token, lease_expires_at, earliest_available_at, progress_percent, progress_message, error_code, error_message, result_ref, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		ownerID         string
		tierName        string
		kindStr         string
		payloadJSON     string
		statusStr       string
		priority        int
		attempts        int
		maxAttempts     int
		stalledCount    int
		leaseToken      sql.NullString
		leaseExpiresRaw sql.NullString
		earliestRaw     string
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		errorCode       sql.NullString
		errorMessage    sql.NullString
		resultRef       sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&tierName,
		&kindStr,
		&payloadJSON,
		&statusStr,
		&priority,
		&attempts,
		&maxAttempts,
		&stalledCount,
		&leaseToken,
		&leaseExpiresRaw,
		&earliestRaw,
		&progressPercent,
		&progressMessage,
		&errorCode,
		&errorMessage,
		&resultRef,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		OwnerID:         ownerID,
		Tier:            tierName,
		Kind:            Kind(kindStr),
		Status:          Status(statusStr),
		Priority:        priority,
		Attempts:        attempts,
		MaxAttempts:     maxAttempts,
		StalledCount:    stalledCount,
		LeaseToken:      leaseToken.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ErrorCode:       errorCode.String,
		ErrorMessage:    errorMessage.String,
		ResultRef:       resultRef.String,
	}

	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for job %s: %w", id, err)
	}

	if earliest, err := parseTimeString(earliestRaw); err == nil {
		job.EarliestAvailableAt = earliest
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if leaseExpiresRaw.Valid {
		if lease, err := parseTimeString(leaseExpiresRaw.String); err == nil {
			job.LeaseExpiresAt = &lease
		}
	}
	return job, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
