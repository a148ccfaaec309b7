package worker

import (
	"math"
	"time"

	"scribe/internal/config"
)

// Policy centralizes retry, backoff, lease, and chunking parameters so the
// pool and stall monitor share one source of timing truth and tests can run
// with compressed values.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	StallCeiling      int
	ChunkParallelism  int
	PollInterval      time.Duration
	ErrorRetryDelay   time.Duration
}

// NewPolicy derives a policy from configuration. The heartbeat interval is a
// tenth of the lease so a healthy worker renews many times before expiry.
func NewPolicy(cfg *config.Config) Policy {
	lease := cfg.Queue.LeaseDuration()
	heartbeat := lease / 10
	if heartbeat < time.Second {
		heartbeat = time.Second
	}
	return Policy{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		BaseDelay:         cfg.Queue.RetryBaseDelay(),
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
		LeaseDuration:     lease,
		HeartbeatInterval: heartbeat,
		StallCeiling:      cfg.Queue.StallCeiling,
		ChunkParallelism:  cfg.Queue.ChunkParallelism,
		PollInterval:      cfg.Queue.PollDuration(),
		ErrorRetryDelay:   cfg.Queue.ErrorRetryDuration(),
	}
}

// RetryDelay returns the backoff before the next attempt after the given
// attempt number failed: baseDelay doubling each attempt (60s, 120s, 240s
// with defaults).
func (p Policy) RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempts-1))
	return time.Duration(delay)
}
