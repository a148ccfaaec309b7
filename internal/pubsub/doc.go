// Package pubsub fans job progress events out to watching clients. The hub
// is transport-agnostic: the daemon's websocket layer adapts connections into
// Subscribers, and anything that drops events simply re-polls the job store.
package pubsub
