// Package queue provides the durable SQLite-backed job store.
//
// Every job transition is a guarded UPDATE: worker-side transitions require
// the worker's lease token, and the claim path flips queued jobs to active
// with a compare-and-set so concurrent workers never share a job. Timestamps
// are stored as RFC3339Nano UTC strings.
package queue
