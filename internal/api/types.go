package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"ownerId"`
	Tier         string      `json:"tier"`
	Kind         string      `json:"kind"`
	Status       string      `json:"status"`
	Phase        string      `json:"phase"`
	Priority     int         `json:"priority"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"maxAttempts"`
	StalledCount int         `json:"stalledCount"`
	Progress     JobProgress `json:"progress"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ArtifactRef  string      `json:"artifactRef,omitempty"`
	ResultRef    string      `json:"resultRef,omitempty"`
	SourceJobID  string      `json:"sourceJobId,omitempty"`
	CreatedAt    string      `json:"createdAt,omitempty"`
	UpdatedAt    string      `json:"updatedAt,omitempty"`
}

// JobProgress captures progress information for a job.
type JobProgress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// SubmitRequest is the payload for job submission.
type SubmitRequest struct {
	OwnerID         string   `json:"ownerId"`
	Kind            string   `json:"kind"`
	ArtifactRef     string   `json:"artifactRef"`
	SizeBytes       int64    `json:"sizeBytes"`
	DurationSeconds float64  `json:"durationSeconds"`
	Format          string   `json:"format"`
	Language        string   `json:"language,omitempty"`
	FollowUps       []string `json:"followUps,omitempty"`
}

// QueueHealth summarizes job counts per lifecycle state.
type QueueHealth struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Backoff   int `json:"backoff"`
	Completed int `json:"completed"`
	Dead      int `json:"dead"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running             bool        `json:"running"`
	PID                 int         `json:"pid"`
	WorkerSlots         int         `json:"workerSlots"`
	QueueDBPath         string      `json:"queueDbPath"`
	LockFilePath        string      `json:"lockFilePath"`
	Queue               QueueHealth `json:"queue"`
	PendingQuotaCommits int         `json:"pendingQuotaCommits"`
}

// QuotaUsage reports an owner's consumption against their tier ceilings for
// the current period. A limit of -1 means the tier is unlimited for that unit.
type QuotaUsage struct {
	OwnerID                string  `json:"ownerId"`
	Tier                   string  `json:"tier"`
	Period                 string  `json:"period"`
	TranscriptionHoursUsed float64 `json:"transcriptionHoursUsed"`
	TranscriptionHoursMax  float64 `json:"transcriptionHoursMax"`
	AnalysisJobsUsed       float64 `json:"analysisJobsUsed"`
	AnalysisJobsMax        float64 `json:"analysisJobsMax"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// CountResponse reports how many records an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// ErrorResponse carries a machine-readable rejection code alongside the
// human-readable message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
