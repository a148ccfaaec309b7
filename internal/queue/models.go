package queue

import (
	"strings"
	"time"
)

// Kind identifies the type of work a job performs.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindSummarize  Kind = "summarize"
	KindTranslate  Kind = "translate"
	KindIndex      Kind = "index"
)

var allKinds = []Kind{KindTranscribe, KindSummarize, KindTranslate, KindIndex}

// AnalysisKinds returns the job kinds derived from a completed transcription.
func AnalysisKinds() []Kind {
	return []Kind{KindSummarize, KindTranslate, KindIndex}
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Status represents the lifecycle of a job.
//
// Transitions move forward only, with two exceptions: active jobs return to
// queued when their lease expires without a heartbeat, and failed jobs return
// to queued once their backoff delay elapses.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
	StatusDead      Status = "dead"
)

var allStatuses = []Status{
	StatusQueued,
	StatusActive,
	StatusFailed,
	StatusCompleted,
	StatusDead,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDead
}

// Stable error codes surfaced through the status interface for dead jobs.
const (
	CodeAttemptsExhausted   = "attempts_exhausted"
	CodeProviderFatal       = "provider_fatal"
	CodeStalledTooManyTimes = "stalled_too_many_times"
)

// Payload describes the input artifact a job operates on. The artifact itself
// lives in external storage; the queue only carries the reference and the
// attributes admission and chunking decisions need.
type Payload struct {
	ArtifactRef     string  `json:"artifact_ref"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Format          string  `json:"format"`
	Language        string  `json:"language,omitempty"`
	// SourceJobID links an analysis job back to the transcription whose
	// output it consumes.
	SourceJobID string `json:"source_job_id,omitempty"`
	// FollowUps lists analysis kinds to enqueue when a transcription
	// completes.
	FollowUps []Kind `json:"follow_ups,omitempty"`
}

// Job is the durable record of one unit of work.
type Job struct {
	ID                  string
	OwnerID             string
	Tier                string
	Kind                Kind
	Payload             Payload
	Status              Status
	Priority            int
	Attempts            int
	MaxAttempts         int
	StalledCount        int
	LeaseToken          string
	LeaseExpiresAt      *time.Time
	EarliestAvailableAt time.Time
	ProgressPercent     float64
	ProgressMessage     string
	ErrorCode           string
	ErrorMessage        string
	ResultRef           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Phase is the user-facing summary of a job's state. Transient retries and
// backoff are reported as continued processing rather than failures.
func (j *Job) Phase() string {
	switch j.Status {
	case StatusCompleted:
		return "completed"
	case StatusDead:
		return "failed"
	default:
		return "processing"
	}
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Active    int
	Backoff   int
	Completed int
	Dead      int
}
