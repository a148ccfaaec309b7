package pubsub

import (
	"sync"
	"time"
)

// Event is one progress update for a job. Events are transient: delivery is
// best-effort and at-most-once per watcher, and the job store remains the
// durable record a client can always poll.
type Event struct {
	JobID           string    `json:"job_id"`
	Phase           string    `json:"phase"`
	Status          string    `json:"status"`
	ProgressPercent float64   `json:"progress_percent"`
	Message         string    `json:"message,omitempty"`
	ErrorCode       string    `json:"error_code,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Subscriber receives events for jobs it watches. Send must not block; it
// reports false when the subscriber can no longer accept events, which makes
// the hub drop its registrations.
type Subscriber interface {
	ID() string
	Send(Event) bool
}

// Hub maps job ids to the subscribers watching them. Registrations live only
// as long as the connection behind the subscriber; nothing here persists.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[string]Subscriber
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[string]Subscriber)}
}

// Subscribe registers a subscriber for a job. Subscribing twice to the same
// job replaces the earlier registration.
func (h *Hub) Subscribe(sub Subscriber, jobID string) {
	if sub == nil || jobID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[jobID]
	if !ok {
		set = make(map[string]Subscriber)
		h.watchers[jobID] = set
	}
	set[sub.ID()] = sub
}

// Unsubscribe removes one job registration for a subscriber.
func (h *Hub) Unsubscribe(subscriberID, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(subscriberID, jobID)
}

// Drop removes every registration for a subscriber, called when its
// connection closes.
func (h *Hub) Drop(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID := range h.watchers {
		h.removeLocked(subscriberID, jobID)
	}
}

func (h *Hub) removeLocked(subscriberID, jobID string) {
	set, ok := h.watchers[jobID]
	if !ok {
		return
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(h.watchers, jobID)
	}
}

// Publish fans an event out to every watcher of its job. Subscribers whose
// Send fails are garbage-collected lazily here, so dead connections cannot
// accumulate registrations.
func (h *Hub) Publish(event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	set := h.watchers[event.JobID]
	subs := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []string
	for _, sub := range subs {
		if sub.Send(event) {
			delivered++
			continue
		}
		dead = append(dead, sub.ID())
	}
	for _, id := range dead {
		h.Drop(id)
	}
	return delivered
}

// Watchers reports how many subscribers watch a job.
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[jobID])
}
