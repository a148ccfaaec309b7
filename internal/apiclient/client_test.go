package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scribe/internal/api"
	"scribe/internal/pubsub"
)

func TestClientSubmitSendsAuthAndDecodesJob(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{ID: "job-1", OwnerID: req.OwnerID, Status: "queued"}})
	}))
	defer server.Close()

	client := New(server.URL, "secret")
	job, err := client.Submit(context.Background(), api.SubmitRequest{OwnerID: "owner-1", Kind: "transcribe"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID != "job-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestClientSurfacesRejectionCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "quota exhausted", Code: "quota_exceeded"})
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.Submit(context.Background(), api.SubmitRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "quota_exceeded" || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestClientPromotesBareAddress(t *testing.T) {
	client := New("127.0.0.1:7788", "")
	if client.baseURL != "http://127.0.0.1:7788" {
		t.Fatalf("unexpected base url: %q", client.baseURL)
	}
}

func TestClientClearQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queue/clear" || r.URL.Query().Get("status") != "dead" {
			t.Fatalf("unexpected request: %s %s", r.URL.Path, r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(api.CountResponse{Count: 3})
	}))
	defer server.Close()

	count, err := New(server.URL, "").ClearQueue(context.Background(), "dead")
	if err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	if count != 3 {
		t.Fatalf("unexpected count: %d", count)
	}
}

func TestWatcherSubscribesAndReceives(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		var cmd watchCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			t.Fatalf("read command: %v", err)
		}
		if cmd.Action != "subscribe" || cmd.JobID != "job-1" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
		conn.WriteJSON(pubsub.Event{JobID: cmd.JobID, Phase: "completed", Status: "completed", Timestamp: time.Now()})
	}))
	defer server.Close()

	watcher, err := New(server.URL, "").Watch(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer watcher.Close()

	event, err := watcher.Next(time.Now().Add(2 * time.Second))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.JobID != "job-1" || event.Phase != "completed" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
