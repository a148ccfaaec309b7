package config

const (
	defaultStateDir           = "~/.local/share/scribe/state"
	defaultLogDir             = "~/.local/share/scribe/logs"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultPollInterval       = 2
	defaultErrorRetryInterval = 10
	defaultWorkerSlots        = 2
	defaultMaxAttempts        = 3
	defaultBaseDelay          = 60
	defaultBackoffMultiplier  = 2.0
	defaultLockDuration       = 300
	defaultStallInterval      = 30
	defaultStallCeiling       = 2
	defaultChunkParallelism   = 2
	defaultRateLimitWindow    = 60
	defaultRateLimitMax       = 10
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Queue: Queue{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			WorkerSlots:        defaultWorkerSlots,
			MaxAttempts:        defaultMaxAttempts,
			BaseDelay:          defaultBaseDelay,
			BackoffMultiplier:  defaultBackoffMultiplier,
			LockDuration:       defaultLockDuration,
			StallInterval:      defaultStallInterval,
			StallCeiling:       defaultStallCeiling,
			ChunkParallelism:   defaultChunkParallelism,
		},
		Admission: Admission{
			SupportedFormats: []string{"wav", "mp3", "m4a", "flac", "ogg", "webm", "mp4"},
			RateLimitWindow:  defaultRateLimitWindow,
			RateLimitMax:     defaultRateLimitMax,
		},
		Providers: map[string]Provider{
			"whisper-large": {
				Endpoint:   "http://127.0.0.1:9090/v1/process",
				MaxBytes:   2 << 30,
				MaxSeconds: 4 * 3600,
				Timeout:    1800,
			},
			"whisper-base": {
				Endpoint:   "http://127.0.0.1:9091/v1/process",
				MaxBytes:   25 << 20,
				MaxSeconds: 15 * 60,
				Timeout:    600,
			},
			"analyst": {
				Endpoint:   "http://127.0.0.1:9092/v1/process",
				MaxBytes:   8 << 20,
				MaxSeconds: 0,
				Timeout:    300,
			},
		},
		Tiers: map[string]Tier{
			"free": {
				Priority:           1,
				TranscriptionHours: 3,
				AnalysisJobs:       10,
				MaxPayloadMiB:      512,
				MaxPayloadMinutes:  90,
				Routes: map[string][]string{
					"transcribe": {"whisper-base"},
					"summarize":  {"analyst"},
					"translate":  {"analyst"},
					"index":      {"analyst"},
				},
			},
			"standard": {
				Priority:           5,
				TranscriptionHours: 20,
				AnalysisJobs:       200,
				MaxPayloadMiB:      2048,
				MaxPayloadMinutes:  240,
				Routes: map[string][]string{
					"transcribe": {"whisper-large", "whisper-base"},
					"summarize":  {"analyst"},
					"translate":  {"analyst"},
					"index":      {"analyst"},
				},
			},
			"pro": {
				Priority:           10,
				TranscriptionHours: -1,
				AnalysisJobs:       -1,
				MaxPayloadMiB:      8192,
				MaxPayloadMinutes:  600,
				Routes: map[string][]string{
					"transcribe": {"whisper-large", "whisper-base"},
					"summarize":  {"analyst"},
					"translate":  {"analyst"},
					"index":      {"analyst"},
				},
			},
		},
		Owners: Owners{
			DefaultTier: "free",
			Tiers:       map[string]string{},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			DeadLettered:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
