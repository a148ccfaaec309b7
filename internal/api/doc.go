// Package api defines the transport DTOs shared by the daemon's HTTP
// surface and the CLI client, plus read-only services that translate
// queue records into them.
package api
