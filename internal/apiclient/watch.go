package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"scribe/internal/pubsub"
)

// watchCommand mirrors the daemon's event channel control message.
type watchCommand struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

// Watcher is a live subscription to job progress events.
type Watcher struct {
	conn *websocket.Conn
}

// Watch opens the event channel and subscribes to the given jobs. More jobs
// can be added later with Subscribe.
func (c *Client) Watch(ctx context.Context, jobIDs ...string) (*Watcher, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/events"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("open event channel: %w", err)
	}

	w := &Watcher{conn: conn}
	for _, jobID := range jobIDs {
		if err := w.Subscribe(jobID); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return w, nil
}

// Subscribe adds a job to the watch set.
func (w *Watcher) Subscribe(jobID string) error {
	return w.conn.WriteJSON(watchCommand{Action: "subscribe", JobID: jobID})
}

// Unsubscribe removes a job from the watch set.
func (w *Watcher) Unsubscribe(jobID string) error {
	return w.conn.WriteJSON(watchCommand{Action: "unsubscribe", JobID: jobID})
}

// Next blocks until the next event arrives or the deadline passes. A zero
// deadline waits indefinitely.
func (w *Watcher) Next(deadline time.Time) (pubsub.Event, error) {
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return pubsub.Event{}, err
	}
	var event pubsub.Event
	if err := w.conn.ReadJSON(&event); err != nil {
		return pubsub.Event{}, err
	}
	return event, nil
}

// Close tears down the event channel.
func (w *Watcher) Close() error {
	return w.conn.Close()
}
