package config

import "time"

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// PollDuration returns how long idle workers wait between claim attempts.
func (q Queue) PollDuration() time.Duration {
	return seconds(q.PollInterval)
}

// ErrorRetryDuration returns the pause after store-level errors in worker loops.
func (q Queue) ErrorRetryDuration() time.Duration {
	return seconds(q.ErrorRetryInterval)
}

// RetryBaseDelay returns the first retry backoff delay.
func (q Queue) RetryBaseDelay() time.Duration {
	return seconds(q.BaseDelay)
}

// LeaseDuration returns how long a worker's claim on a job lasts between
// heartbeats.
func (q Queue) LeaseDuration() time.Duration {
	return seconds(q.LockDuration)
}

// StallTick returns the interval between stall monitor scans.
func (q Queue) StallTick() time.Duration {
	return seconds(q.StallInterval)
}

// RateWindow returns the sliding-window length for submission rate limiting.
func (a Admission) RateWindow() time.Duration {
	return seconds(a.RateLimitWindow)
}

// RequestTimeout returns the per-call timeout for a provider.
func (p Provider) RequestTimeout() time.Duration {
	return seconds(p.Timeout)
}

// NotifyTimeout returns the HTTP timeout for push notifications.
func (n Notifications) NotifyTimeout() time.Duration {
	return seconds(n.RequestTimeout)
}
