package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateTiers(); err != nil {
		return err
	}
	if err := c.validateOwners(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.poll_interval":        c.Queue.PollInterval,
		"queue.error_retry_interval": c.Queue.ErrorRetryInterval,
		"queue.worker_slots":         c.Queue.WorkerSlots,
		"queue.max_attempts":         c.Queue.MaxAttempts,
		"queue.base_delay":           c.Queue.BaseDelay,
		"queue.lock_duration":        c.Queue.LockDuration,
		"queue.stall_interval":       c.Queue.StallInterval,
		"queue.stall_ceiling":        c.Queue.StallCeiling,
		"queue.chunk_parallelism":    c.Queue.ChunkParallelism,
	}); err != nil {
		return err
	}
	if c.Queue.BackoffMultiplier < 1 {
		return errors.New("queue.backoff_multiplier must be at least 1")
	}
	if c.Queue.LockDuration <= c.Queue.PollInterval {
		return errors.New("queue.lock_duration must be greater than queue.poll_interval")
	}
	return nil
}

func (c *Config) validateAdmission() error {
	if len(c.Admission.SupportedFormats) == 0 {
		return errors.New("admission.supported_formats must not be empty")
	}
	return ensurePositiveMap(map[string]int{
		"admission.rate_limit_window": c.Admission.RateLimitWindow,
		"admission.rate_limit_max":    c.Admission.RateLimitMax,
	})
}

func (c *Config) validateProviders() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(provider.Endpoint) == "" {
			return fmt.Errorf("providers.%s.endpoint must be set", name)
		}
		if provider.Timeout <= 0 {
			return fmt.Errorf("providers.%s.timeout must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateTiers() error {
	if len(c.Tiers) == 0 {
		return errors.New("at least one tier must be configured")
	}
	for name, tier := range c.Tiers {
		if tier.MaxPayloadMiB <= 0 {
			return fmt.Errorf("tiers.%s.max_payload_mib must be positive", name)
		}
		if tier.MaxPayloadMinutes <= 0 {
			return fmt.Errorf("tiers.%s.max_payload_minutes must be positive", name)
		}
		for kind, route := range tier.Routes {
			if len(route) == 0 {
				return fmt.Errorf("tiers.%s.routes.%s must list at least one provider", name, kind)
			}
			for _, providerName := range route {
				if _, ok := c.Providers[providerName]; !ok {
					return fmt.Errorf("tiers.%s.routes.%s references unknown provider %q", name, kind, providerName)
				}
			}
		}
	}
	return nil
}

func (c *Config) validateOwners() error {
	defaultTier := strings.TrimSpace(c.Owners.DefaultTier)
	if defaultTier == "" {
		return errors.New("owners.default_tier must be set")
	}
	if _, ok := c.Tiers[defaultTier]; !ok {
		return fmt.Errorf("owners.default_tier references unknown tier %q", defaultTier)
	}
	for owner, tierName := range c.Owners.Tiers {
		if _, ok := c.Tiers[tierName]; !ok {
			return fmt.Errorf("owners.tiers.%s references unknown tier %q", owner, tierName)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
