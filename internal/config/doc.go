// Package config loads, normalizes, and validates Scribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: queue timing and retry policy, admission limits,
// provider endpoints, and the tier catalog.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
