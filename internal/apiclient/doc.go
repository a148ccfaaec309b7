// Package apiclient is the thin HTTP and websocket client the CLI uses to
// talk to a running daemon.
package apiclient
