package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"scribe/internal/config"
	"scribe/internal/provider"
	"scribe/internal/tier"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *provider.HTTPProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return provider.NewHTTPProvider("test", config.Provider{
		Endpoint: server.URL,
		APIKey:   "key",
		Timeout:  5,
	})
}

func TestProcessSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"output_ref":"results/out.txt","text":"hello"}`))
	})

	result, err := p.Process(context.Background(), provider.Request{
		JobID:        "job-1",
		Kind:         "transcribe",
		ArtifactRef:  "artifacts/a.wav",
		SegmentCount: 1,
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.OutputRef != "results/out.txt" || result.Text != "hello" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestProcessClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        string
		retryable   bool
		fatal       bool
		unavailable bool
	}{
		{"server error", http.StatusBadGateway, "upstream down", true, false, false},
		{"rate limited", http.StatusTooManyRequests, "", true, false, false},
		{"bad content", http.StatusUnprocessableEntity, "corrupt payload", false, true, false},
		{"provider error field", http.StatusOK, `{"error":"unsupported codec"}`, false, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := p.Process(context.Background(), provider.Request{JobID: "job", SegmentCount: 1})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := provider.IsRetryable(err); got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v (err: %v)", got, tc.retryable, err)
			}
			if got := provider.IsFatal(err); got != tc.fatal {
				t.Fatalf("IsFatal = %v, want %v (err: %v)", got, tc.fatal, err)
			}
			if got := provider.IsUnavailable(err); got != tc.unavailable {
				t.Fatalf("IsUnavailable = %v, want %v (err: %v)", got, tc.unavailable, err)
			}
		})
	}
}

func TestProcessConnectionFailureIsUnavailable(t *testing.T) {
	p := provider.NewHTTPProvider("down", config.Provider{
		Endpoint: "http://127.0.0.1:1/v1/process",
		Timeout:  1,
	})
	_, err := p.Process(context.Background(), provider.Request{JobID: "job", SegmentCount: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsUnavailable(err) {
		t.Fatalf("expected unavailable classification, got %v", err)
	}
	if !provider.IsRetryable(err) {
		t.Fatalf("unavailable must also be retryable, got %v", err)
	}
}

func TestCallLimitsAccepts(t *testing.T) {
	limits := provider.CallLimits{MaxBytes: 100, MaxSeconds: 60}
	if !limits.Accepts(100, 60) {
		t.Fatal("expected boundary values to fit")
	}
	if limits.Accepts(101, 10) {
		t.Fatal("expected oversized payload to be rejected")
	}
	if limits.Accepts(10, 61) {
		t.Fatal("expected overlong payload to be rejected")
	}
	unbounded := provider.CallLimits{}
	if !unbounded.Accepts(1<<40, 1e9) {
		t.Fatal("expected unbounded limits to accept anything")
	}
}

func TestRegistryRoute(t *testing.T) {
	cfg := config.Default()
	reg := provider.NewRegistry(&cfg)

	p, ok := reg.Lookup("whisper-large")
	if !ok {
		t.Fatal("expected whisper-large in registry")
	}
	if p.Limits().MaxBytes != 2<<30 {
		t.Fatalf("unexpected limits: %#v", p.Limits())
	}

	catalog, err := tier.NewCatalog(&cfg)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	limits, ok := catalog.Lookup("standard")
	if !ok {
		t.Fatal("expected standard tier")
	}
	route, err := reg.Route(limits, "transcribe")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(route) != 2 || route[0].Name() != "whisper-large" || route[1].Name() != "whisper-base" {
		t.Fatalf("unexpected route: %#v", route)
	}

	broken := limits
	broken.Routes = map[string][]string{"transcribe": {"nope"}}
	if _, err := reg.Route(broken, "transcribe"); err == nil {
		t.Fatal("expected error for unknown provider in route")
	}
}
