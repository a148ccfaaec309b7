package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/queue"
	"scribe/internal/quota"
	"scribe/internal/tier"
)

// Reason identifies why a submission was rejected. Rejections are terminal;
// a rejected submission never creates a job record.
type Reason string

const (
	ReasonQuotaExceeded     Reason = "quota_exceeded"
	ReasonPayloadTooLarge   Reason = "payload_too_large"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonRateLimited       Reason = "rate_limited"
)

// RejectionError is returned when a submission fails admission checks.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("submission rejected (%s): %s", e.Reason, e.Message)
}

// AsRejection unwraps a rejection from an error chain.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// Controller performs admission checks and inserts accepted jobs. It is the
// only component that creates job records.
type Controller struct {
	store   *queue.Store
	ledger  *quota.Ledger
	catalog *tier.Catalog
	formats map[string]struct{}
	limiter *slidingWindow
	maxAtt  int
	metrics metrics.Metrics
	logger  *slog.Logger
}

// NewController builds an admission controller from validated configuration.
// A nil metrics sink falls back to Noop.
func NewController(cfg *config.Config, store *queue.Store, ledger *quota.Ledger, catalog *tier.Catalog, m metrics.Metrics, logger *slog.Logger) *Controller {
	formats := make(map[string]struct{}, len(cfg.Admission.SupportedFormats))
	for _, format := range cfg.Admission.SupportedFormats {
		formats[strings.ToLower(strings.TrimSpace(format))] = struct{}{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		store:   store,
		ledger:  ledger,
		catalog: catalog,
		formats: formats,
		limiter: newSlidingWindow(cfg.Admission.RateLimitMax, cfg.Admission.RateWindow()),
		maxAtt:  cfg.Queue.MaxAttempts,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "admission"),
	}
}

// Submit validates a submission against the owner's tier and quota, then
// inserts the job in the queued state. Priority and tier are resolved once
// here and frozen onto the record.
func (c *Controller) Submit(ctx context.Context, ownerID string, kind queue.Kind, payload queue.Payload) (*queue.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	parsedKind, ok := ParseSubmissionKind(string(kind))
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	if !c.limiter.allow(ownerID) {
		return nil, c.reject(ownerID, parsedKind, ReasonRateLimited, "too many submissions, slow down")
	}

	limits := c.catalog.LimitsFor(ownerID)

	if parsedKind == queue.KindTranscribe {
		format := strings.ToLower(strings.TrimSpace(payload.Format))
		if _, ok := c.formats[format]; !ok {
			return nil, c.reject(ownerID, parsedKind, ReasonUnsupportedFormat,
				fmt.Sprintf("format %q is not supported", payload.Format))
		}
		if limits.MaxPayloadBytes > 0 && payload.SizeBytes > limits.MaxPayloadBytes {
			return nil, c.reject(ownerID, parsedKind, ReasonPayloadTooLarge,
				fmt.Sprintf("payload of %d bytes exceeds the %s tier limit", payload.SizeBytes, limits.Name))
		}
		if limits.MaxPayloadSeconds > 0 && payload.DurationSeconds > limits.MaxPayloadSeconds {
			return nil, c.reject(ownerID, parsedKind, ReasonPayloadTooLarge,
				fmt.Sprintf("payload of %.0fs exceeds the %s tier duration limit", payload.DurationSeconds, limits.Name))
		}
	}

	estimated := quota.UnitsFor(string(parsedKind), payload.DurationSeconds)
	exceeds, err := c.ledger.WouldExceed(ctx, ownerID, string(parsedKind), estimated)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if exceeds {
		return nil, c.reject(ownerID, parsedKind, ReasonQuotaExceeded,
			fmt.Sprintf("%s quota for the current period is exhausted", parsedKind))
	}

	job, err := c.store.NewJob(ctx, queue.NewJobParams{
		OwnerID:     ownerID,
		Tier:        limits.Name,
		Kind:        parsedKind,
		Payload:     payload,
		Priority:    limits.Priority,
		MaxAttempts: c.maxAtt,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	c.metrics.IncSubmitted(string(parsedKind))

	c.logger.Info("job accepted",
		logging.Args(
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldOwner, ownerID),
			logging.String(logging.FieldKind, string(parsedKind)),
			logging.String("tier", limits.Name),
			logging.Int("priority", limits.Priority),
		)...)
	return job, nil
}

// SubmitFollowUp enqueues an analysis job derived from a completed parent.
// The payload inherits the parent's artifact metadata; quota checks apply the
// same way as direct submissions but the rate limiter is bypassed since the
// fan-out is system-driven.
func (c *Controller) SubmitFollowUp(ctx context.Context, parent *queue.Job, kind queue.Kind) (*queue.Job, error) {
	parsedKind, ok := queue.ParseKind(string(kind))
	if !ok || parsedKind == queue.KindTranscribe {
		return nil, fmt.Errorf("invalid follow-up kind %q", kind)
	}

	estimated := quota.UnitsFor(string(parsedKind), 0)
	exceeds, err := c.ledger.WouldExceed(ctx, parent.OwnerID, string(parsedKind), estimated)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if exceeds {
		return nil, c.reject(parent.OwnerID, parsedKind, ReasonQuotaExceeded,
			fmt.Sprintf("%s quota for the current period is exhausted", parsedKind))
	}

	limits := c.catalog.LimitsFor(parent.OwnerID)
	payload := queue.Payload{
		ArtifactRef: parent.ResultRef,
		Format:      "text",
		SourceJobID: parent.ID,
	}
	job, err := c.store.NewJob(ctx, queue.NewJobParams{
		OwnerID:     parent.OwnerID,
		Tier:        limits.Name,
		Kind:        parsedKind,
		Payload:     payload,
		Priority:    limits.Priority,
		MaxAttempts: c.maxAtt,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue follow-up job: %w", err)
	}
	c.metrics.IncSubmitted(string(parsedKind))
	c.logger.Info("follow-up job accepted",
		logging.Args(
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldOwner, parent.OwnerID),
			logging.String(logging.FieldKind, string(parsedKind)),
			logging.String("parent", parent.ID),
		)...)
	return job, nil
}

// ParseSubmissionKind resolves a submission kind string.
func ParseSubmissionKind(raw string) (queue.Kind, bool) {
	return queue.ParseKind(raw)
}

func (c *Controller) reject(ownerID string, kind queue.Kind, reason Reason, message string) *RejectionError {
	c.metrics.IncRejected(string(reason))
	c.logger.Info("submission rejected",
		logging.Args(
			logging.String(logging.FieldOwner, ownerID),
			logging.String(logging.FieldKind, string(kind)),
			logging.String("reason", string(reason)),
		)...)
	return &RejectionError{Reason: reason, Message: message}
}
