// Package daemon wires the queue store, worker pool, stall monitor, and
// progress hub into a single-instance background process and exposes them
// over an HTTP API with a websocket event channel.
package daemon
