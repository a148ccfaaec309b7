// Command scribe is the operator CLI for the scribe daemon: submitting
// jobs, inspecting queue and quota state, and streaming live progress.
package main
