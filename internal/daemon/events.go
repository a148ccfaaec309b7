package daemon

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scribe/internal/logging"
	"scribe/internal/pubsub"
)

// eventBuffer bounds how far a slow client may fall behind before the hub
// drops its registrations.
const eventBuffer = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// eventCommand is a control message from a watch client.
type eventCommand struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

// eventSubscriber adapts one websocket connection to the hub. Send never
// blocks: when the buffer is full the hub treats the subscriber as dead.
type eventSubscriber struct {
	id     string
	events chan pubsub.Event
}

func (s *eventSubscriber) ID() string { return s.id }

func (s *eventSubscriber) Send(event pubsub.Event) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.hub
	if hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event channel unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	sub := &eventSubscriber{
		id:     uuid.NewString(),
		events: make(chan pubsub.Event, eventBuffer),
	}
	defer hub.Drop(sub.id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd eventCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			switch cmd.Action {
			case "subscribe":
				hub.Subscribe(sub, cmd.JobID)
			case "unsubscribe":
				hub.Unsubscribe(sub.id, cmd.JobID)
			}
		}
	}()

	for {
		select {
		case event := <-sub.events:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
