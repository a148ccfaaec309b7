package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("expected default max_attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`[paths]`,
		`state_dir = "` + filepath.Join(dir, "state") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		``,
		`[queue]`,
		`worker_slots = 4`,
		`stall_ceiling = 5`,
		``,
		`[admission]`,
		`supported_formats = ["WAV", " mp3 "]`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Queue.WorkerSlots != 4 {
		t.Fatalf("worker_slots = %d, want 4", cfg.Queue.WorkerSlots)
	}
	if cfg.Queue.StallCeiling != 5 {
		t.Fatalf("stall_ceiling = %d, want 5", cfg.Queue.StallCeiling)
	}
	want := []string{"wav", "mp3"}
	if len(cfg.Admission.SupportedFormats) != len(want) {
		t.Fatalf("supported formats = %v, want %v", cfg.Admission.SupportedFormats, want)
	}
	for i, format := range want {
		if cfg.Admission.SupportedFormats[i] != format {
			t.Fatalf("supported formats = %v, want %v", cfg.Admission.SupportedFormats, want)
		}
	}
}

func TestValidateRejectsBadRoutes(t *testing.T) {
	cfg := config.Default()
	tier := cfg.Tiers["free"]
	tier.Routes = map[string][]string{"transcribe": {"nope"}}
	cfg.Tiers["free"] = tier
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown provider route")
	}
}

func TestValidateRejectsUnknownDefaultTier(t *testing.T) {
	cfg := config.Default()
	cfg.Owners.DefaultTier = "platinum"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown default tier")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}
