package admission

import (
	"sync"
	"time"
)

// slidingWindow enforces a per-caller submission cap over a rolling window.
// Entries for quiet callers are pruned on their next submission; the map is
// bounded by the number of distinct callers, which the deployment model keeps
// small.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	seen   map[string][]time.Time
	now    func() time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:    max,
		window: window,
		seen:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow records the submission and reports whether it fits in the window.
// A max of zero disables limiting.
func (w *slidingWindow) allow(caller string) bool {
	if w.max <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	recent := w.seen[caller][:0]
	for _, at := range w.seen[caller] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) >= w.max {
		w.seen[caller] = recent
		return false
	}
	w.seen[caller] = append(recent, now)
	return true
}
