// Package notifications delivers terminal job outcomes via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when no topic is set. Workers depend
// only on the small Service interface, so alternative transports slot in
// without touching pipeline code.
package notifications
