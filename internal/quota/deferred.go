package quota

import "sync"

type pendingCommit struct {
	JobID   string
	OwnerID string
	Kind    string
	Units   float64
}

// deferredCommits parks usage commits that could not be persisted so a
// periodic reconciliation pass can retry them.
type deferredCommits struct {
	mu      sync.Mutex
	pending []pendingCommit
}

func newDeferredCommits() *deferredCommits {
	return &deferredCommits{}
}

func (d *deferredCommits) add(p pendingCommit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.pending {
		if existing.JobID == p.JobID {
			return
		}
	}
	d.pending = append(d.pending, p)
}

func (d *deferredCommits) drain() []pendingCommit {
	d.mu.Lock()
	defer d.mu.Unlock()
	drained := d.pending
	d.pending = nil
	return drained
}

func (d *deferredCommits) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
