package pubsub_test

import (
	"sync"
	"testing"

	"scribe/internal/pubsub"
)

type recordingSub struct {
	id     string
	mu     sync.Mutex
	events []pubsub.Event
	closed bool
}

func (s *recordingSub) ID() string { return s.id }

func (s *recordingSub) Send(event pubsub.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, event)
	return true
}

func (s *recordingSub) received() []pubsub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pubsub.Event(nil), s.events...)
}

func (s *recordingSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func TestPublishReachesOnlyWatchers(t *testing.T) {
	hub := pubsub.NewHub()
	watcher := &recordingSub{id: "c1"}
	bystander := &recordingSub{id: "c2"}
	hub.Subscribe(watcher, "job-a")
	hub.Subscribe(bystander, "job-b")

	delivered := hub.Publish(pubsub.Event{JobID: "job-a", Status: "active", ProgressPercent: 25})
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	if got := watcher.received(); len(got) != 1 || got[0].ProgressPercent != 25 {
		t.Fatalf("unexpected watcher events: %#v", got)
	}
	if got := bystander.received(); len(got) != 0 {
		t.Fatalf("bystander must receive nothing, got %#v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := pubsub.NewHub()
	sub := &recordingSub{id: "c1"}
	hub.Subscribe(sub, "job-a")
	hub.Unsubscribe("c1", "job-a")

	if delivered := hub.Publish(pubsub.Event{JobID: "job-a"}); delivered != 0 {
		t.Fatalf("expected no deliveries, got %d", delivered)
	}
}

func TestDeadSubscriberIsCollectedOnPublish(t *testing.T) {
	hub := pubsub.NewHub()
	sub := &recordingSub{id: "c1"}
	hub.Subscribe(sub, "job-a")
	hub.Subscribe(sub, "job-b")
	sub.close()

	if delivered := hub.Publish(pubsub.Event{JobID: "job-a"}); delivered != 0 {
		t.Fatalf("expected no deliveries to closed subscriber, got %d", delivered)
	}
	// The failed send drops every registration for the subscriber.
	if n := hub.Watchers("job-a"); n != 0 {
		t.Fatalf("expected job-a watchers collected, got %d", n)
	}
	if n := hub.Watchers("job-b"); n != 0 {
		t.Fatalf("expected job-b watchers collected, got %d", n)
	}
}

func TestDropRemovesAllRegistrations(t *testing.T) {
	hub := pubsub.NewHub()
	sub := &recordingSub{id: "c1"}
	other := &recordingSub{id: "c2"}
	hub.Subscribe(sub, "job-a")
	hub.Subscribe(other, "job-a")
	hub.Subscribe(sub, "job-b")

	hub.Drop("c1")

	if n := hub.Watchers("job-a"); n != 1 {
		t.Fatalf("expected one remaining watcher, got %d", n)
	}
	if n := hub.Watchers("job-b"); n != 0 {
		t.Fatalf("expected no watchers after drop, got %d", n)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := pubsub.NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		sub := &recordingSub{id: string(rune('a' + i))}
		go func() {
			defer wg.Done()
			hub.Subscribe(sub, "job-a")
			hub.Drop(sub.ID())
		}()
		go func() {
			defer wg.Done()
			hub.Publish(pubsub.Event{JobID: "job-a"})
		}()
	}
	wg.Wait()
}
