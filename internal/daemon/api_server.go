package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"scribe/internal/admission"
	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/queue"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobSvc *api.JobService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		jobSvc: api.NewJobService(d.store),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJob))
	mux.HandleFunc("/api/queue/clear", authMiddleware(token, srv.handleQueueClear))
	mux.HandleFunc("/api/quota/", authMiddleware(token, srv.handleQuota))
	mux.HandleFunc("/api/events", authMiddleware(token, srv.handleEvents))
	mux.Handle("/metrics", metrics.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:             status.Running,
		PID:                 status.PID,
		WorkerSlots:         status.WorkerSlots,
		QueueDBPath:         status.QueueDBPath,
		LockFilePath:        status.LockFilePath,
		Queue:               api.FromHealth(status.Queue),
		PendingQuotaCommits: status.PendingQuotaCommits,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.submitJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if owner := strings.TrimSpace(query.Get("owner")); owner != "" {
		jobs, err := s.jobSvc.ListByOwner(r.Context(), owner)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
		return
	}

	var statuses []queue.Status
	for _, value := range query["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.jobSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) submitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, ok := admission.ParseSubmissionKind(req.Kind)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job kind %q", req.Kind))
		return
	}

	payload := queue.Payload{
		ArtifactRef:     req.ArtifactRef,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
		Format:          req.Format,
		Language:        req.Language,
	}
	for _, raw := range req.FollowUps {
		followUp, ok := queue.ParseKind(raw)
		if !ok || followUp == queue.KindTranscribe {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid follow-up kind %q", raw))
			return
		}
		payload.FollowUps = append(payload.FollowUps, followUp)
	}

	job, err := s.daemon.admission.Submit(r.Context(), req.OwnerID, kind, payload)
	if err != nil {
		if rejection, ok := admission.AsRejection(err); ok {
			s.writeRejection(w, rejection)
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.describeJob(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.removeJob(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.retryJob(w, r, id)
	case action != "" && action != "retry":
		s.writeError(w, http.StatusNotFound, "job not found")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) describeJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.jobSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) removeJob(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.daemon.Remove(r.Context(), id); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: 1})
}

func (s *apiServer) retryJob(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.daemon.RetryDead(r.Context(), id); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	job, err := s.jobSvc.Describe(r.Context(), id)
	if err != nil || job == nil {
		s.writeError(w, http.StatusInternalServerError, "retry succeeded but job could not be read")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var (
		count int
		err   error
	)
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case string(queue.StatusCompleted):
		count, err = s.daemon.ClearCompleted(r.Context())
	case string(queue.StatusDead):
		count, err = s.daemon.ClearDead(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "status must be completed or dead")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	owner := strings.TrimPrefix(r.URL.Path, "/api/quota/")
	if owner == "" || strings.Contains(owner, "/") {
		s.writeError(w, http.StatusNotFound, "owner not found")
		return
	}
	usage, err := s.daemon.QuotaUsage(r.Context(), owner)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QuotaUsage{
		OwnerID:                usage.OwnerID,
		Tier:                   usage.Tier,
		Period:                 usage.Period,
		TranscriptionHoursUsed: usage.TranscriptionHoursUsed,
		TranscriptionHoursMax:  usage.TranscriptionHoursMax,
		AnalysisJobsUsed:       usage.AnalysisJobsUsed,
		AnalysisJobsMax:        usage.AnalysisJobsMax,
	})
}

func (s *apiServer) writeRejection(w http.ResponseWriter, rejection *admission.RejectionError) {
	status := http.StatusUnprocessableEntity
	switch rejection.Reason {
	case admission.ReasonRateLimited:
		status = http.StatusTooManyRequests
	case admission.ReasonQuotaExceeded:
		status = http.StatusForbidden
	case admission.ReasonPayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case admission.ReasonUnsupportedFormat:
		status = http.StatusUnsupportedMediaType
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error: rejection.Message,
		Code:  string(rejection.Reason),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
