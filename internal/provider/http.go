package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const defaultHTTPTimeout = 10 * time.Minute

// HTTPProvider submits processing requests to a backend over HTTP. The wire
// contract is a single POST carrying the artifact reference and segment
// bounds; the backend fetches the artifact itself.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	limits     CallLimits
	httpClient *http.Client
}

// Option customizes an HTTP provider.
type Option func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client (used by tests).
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewHTTPProvider constructs a provider from its configuration block.
func NewHTTPProvider(name string, pc config.Provider, opts ...Option) *HTTPProvider {
	timeout := pc.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	p := &HTTPProvider{
		name:     name,
		endpoint: strings.TrimRight(strings.TrimSpace(pc.Endpoint), "/"),
		apiKey:   strings.TrimSpace(pc.APIKey),
		limits: CallLimits{
			MaxBytes:   pc.MaxBytes,
			MaxSeconds: pc.MaxSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) Limits() CallLimits {
	return p.limits
}

type processRequest struct {
	JobID           string  `json:"job_id"`
	Kind            string  `json:"kind"`
	ArtifactRef     string  `json:"artifact_ref"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Format          string  `json:"format"`
	Language        string  `json:"language,omitempty"`
	Segment         int     `json:"segment"`
	SegmentCount    int     `json:"segment_count"`
}

type processResponse struct {
	OutputRef string `json:"output_ref"`
	Text      string `json:"text"`
	Error     string `json:"error"`
}

// Process submits one call and classifies the outcome. Timeouts and 5xx
// responses are retryable, 429 is retryable, connection errors mark the
// provider unavailable so the worker can fall back, and 4xx content errors
// are fatal.
func (p *HTTPProvider) Process(ctx context.Context, req Request) (*Result, error) {
	if p.endpoint == "" {
		return nil, Wrap(ErrUnavailable, p.name, "process", "no endpoint configured", nil)
	}

	encoded, err := json.Marshal(processRequest{
		JobID:           req.JobID,
		Kind:            req.Kind,
		ArtifactRef:     req.ArtifactRef,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
		Format:          req.Format,
		Language:        req.Language,
		Segment:         req.Segment,
		SegmentCount:    req.SegmentCount,
	})
	if err != nil {
		return nil, Wrap(ErrFatal, p.name, "process", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, Wrap(ErrFatal, p.name, "process", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, Wrap(ErrUnavailable, p.name, "process", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, Wrap(ErrRetryable, p.name, "process", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Wrap(ErrRetryable, p.name, "process", "rate limited", nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, Wrap(ErrRetryable, p.name, "process",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(body)), nil)
	default:
		return nil, Wrap(ErrFatal, p.name, "process",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarize(body)), nil)
	}

	var decoded processResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, Wrap(ErrRetryable, p.name, "process", "decode response", err)
	}
	if decoded.Error != "" {
		return nil, Wrap(ErrFatal, p.name, "process", decoded.Error, nil)
	}
	return &Result{OutputRef: decoded.OutputRef, Text: decoded.Text}, nil
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "empty response"
	}
	return text
}
