package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Queue contains dispatch, retry, and stall-recovery timing configuration.
// Durations are expressed in seconds so operators can tune them without
// duration-string parsing.
type Queue struct {
	PollInterval       int     `toml:"poll_interval"`
	ErrorRetryInterval int     `toml:"error_retry_interval"`
	WorkerSlots        int     `toml:"worker_slots"`
	MaxAttempts        int     `toml:"max_attempts"`
	BaseDelay          int     `toml:"base_delay"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	LockDuration       int     `toml:"lock_duration"`
	StallInterval      int     `toml:"stall_interval"`
	StallCeiling       int     `toml:"stall_ceiling"`
	ChunkParallelism   int     `toml:"chunk_parallelism"`
}

// Admission contains submission-boundary configuration.
type Admission struct {
	SupportedFormats []string `toml:"supported_formats"`
	RateLimitWindow  int      `toml:"rate_limit_window"`
	RateLimitMax     int      `toml:"rate_limit_max"`
}

// Provider describes one external processing backend.
type Provider struct {
	Endpoint   string  `toml:"endpoint"`
	APIKey     string  `toml:"api_key"`
	MaxBytes   int64   `toml:"max_bytes"`
	MaxSeconds float64 `toml:"max_seconds"`
	Timeout    int     `toml:"timeout"`
}

// Tier describes one subscription level: quota limits, payload ceilings,
// queue priority, and provider routing per job kind. Routes map a job kind
// to an ordered provider list (primary first, fallback second).
type Tier struct {
	Priority          int                 `toml:"priority"`
	TranscriptionHours float64            `toml:"transcription_hours"`
	AnalysisJobs      float64             `toml:"analysis_jobs"`
	MaxPayloadMiB     int64               `toml:"max_payload_mib"`
	MaxPayloadMinutes float64             `toml:"max_payload_minutes"`
	Routes            map[string][]string `toml:"routes"`
}

// Owners maps owner identifiers to tier names.
type Owners struct {
	DefaultTier string            `toml:"default_tier"`
	Tiers       map[string]string `toml:"tiers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	DeadLettered   bool   `toml:"dead_lettered"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Scribe.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Queue: worker slots, retry/backoff policy, stall recovery
//   - Admission: supported formats and submission rate limiting
//   - Providers: external processing backends keyed by name
//   - Tiers: subscription levels keyed by name
//   - Owners: owner-to-tier assignment
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths               `toml:"paths"`
	Queue         Queue               `toml:"queue"`
	Admission     Admission           `toml:"admission"`
	Providers     map[string]Provider `toml:"providers"`
	Tiers         map[string]Tier     `toml:"tiers"`
	Owners        Owners              `toml:"owners"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	formats := make([]string, 0, len(c.Admission.SupportedFormats))
	for _, format := range c.Admission.SupportedFormats {
		trimmed := strings.ToLower(strings.TrimSpace(format))
		if trimmed != "" {
			formats = append(formats, trimmed)
		}
	}
	c.Admission.SupportedFormats = formats
	return nil
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
