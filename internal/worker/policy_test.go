package worker

import (
	"testing"
	"time"

	"scribe/internal/config"
)

func TestRetryDelayDoubles(t *testing.T) {
	policy := Policy{BaseDelay: 60 * time.Second, BackoffMultiplier: 2}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.RetryDelay(tc.attempts); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempts, tc.want, got)
		}
	}
}

func TestRetryDelayClampsAttempts(t *testing.T) {
	policy := Policy{BaseDelay: time.Minute, BackoffMultiplier: 2}
	if got := policy.RetryDelay(0); got != time.Minute {
		t.Fatalf("expected base delay for attempt 0, got %s", got)
	}
}

func TestNewPolicyDerivesHeartbeat(t *testing.T) {
	cfg := config.Default()
	policy := NewPolicy(&cfg)

	if policy.LeaseDuration != 300*time.Second {
		t.Fatalf("unexpected lease duration %s", policy.LeaseDuration)
	}
	if policy.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected heartbeat at a tenth of the lease, got %s", policy.HeartbeatInterval)
	}

	cfg.Queue.LockDuration = 5
	policy = NewPolicy(&cfg)
	if policy.HeartbeatInterval != time.Second {
		t.Fatalf("expected heartbeat floor of 1s, got %s", policy.HeartbeatInterval)
	}
}
