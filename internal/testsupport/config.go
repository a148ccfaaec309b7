package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.APIToken = "test-token"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithStallCeiling overrides the stall ceiling on the test config.
func WithStallCeiling(ceiling int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.StallCeiling = ceiling
	}
}

// WithMaxAttempts overrides the attempt budget on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = attempts
	}
}

// WithDefaultTier overrides the tier new owners land in.
func WithDefaultTier(tier string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Owners.DefaultTier = tier
	}
}
