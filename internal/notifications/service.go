package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
)

const userAgent = "Scribe/0.1.0"

// Service defines the push-notification surface for terminal job outcomes.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job *queue.Job) error
	NotifyJobDeadLettered(ctx context.Context, job *queue.Job) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.Notifications.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		completed:    cfg.Notifications.Completed,
		deadLettered: cfg.Notifications.DeadLettered,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	completed    bool
	deadLettered bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job *queue.Job) error {
	if !n.completed {
		return nil
	}
	data := payload{
		title:   "Scribe - Job Complete",
		message: fmt.Sprintf("%s job %s finished for %s", job.Kind, shortID(job.ID), job.OwnerID),
		tags:    []string{"scribe", string(job.Kind), "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobDeadLettered(ctx context.Context, job *queue.Job) error {
	if !n.deadLettered {
		return nil
	}
	reason := strings.TrimSpace(job.ErrorMessage)
	if reason == "" {
		reason = job.ErrorCode
	}
	data := payload{
		title:    "Scribe - Job Dead-Lettered",
		message:  fmt.Sprintf("%s job %s for %s gave up: %s", job.Kind, shortID(job.ID), job.OwnerID, reason),
		tags:     []string{"scribe", string(job.Kind), "dead"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, *queue.Job) error    { return nil }
func (noopService) NotifyJobDeadLettered(context.Context, *queue.Job) error { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }

// WorkerNotifier adapts a Service to the worker pool's fire-and-forget
// notification hooks. Send failures are logged and dropped; notifications
// never affect job outcomes.
type WorkerNotifier struct {
	svc    Service
	logger *slog.Logger
}

// NewWorkerNotifier wraps a Service for use by the pool and stall monitor.
func NewWorkerNotifier(svc Service, logger *slog.Logger) *WorkerNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkerNotifier{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (w *WorkerNotifier) JobCompleted(ctx context.Context, job *queue.Job) {
	if err := w.svc.NotifyJobCompleted(ctx, job); err != nil {
		w.logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (w *WorkerNotifier) JobDeadLettered(ctx context.Context, job *queue.Job) {
	if err := w.svc.NotifyJobDeadLettered(ctx, job); err != nil {
		w.logger.Warn("dead-letter notification failed", logging.Error(err))
	}
}
