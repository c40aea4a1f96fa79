package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vast/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VAST_MINIO_ACCESS_KEY", "")
	t.Setenv("VAST_MINIO_SECRET_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "vast", "runs")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Sampling.IntervalSeconds != config.Default().Sampling.IntervalSeconds {
		t.Fatalf("unexpected interval: %v", cfg.Sampling.IntervalSeconds)
	}
	if cfg.Detection.Strategy != "structural" {
		t.Fatalf("expected structural strategy by default, got %q", cfg.Detection.Strategy)
	}
	if cfg.Storage.Enabled || cfg.Metrics.Enabled || cfg.Transcription.Enabled {
		t.Fatal("expected optional integrations disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if got := cfg.RunsDBPath(); got != filepath.Join(cfg.Paths.LogDir, "runs.db") {
		t.Fatalf("unexpected runs db path %q", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vast.toml")

	type payload struct {
		Sampling struct {
			IntervalSeconds float64 `toml:"interval_seconds"`
		} `toml:"sampling"`
		Detection struct {
			Strategy  string  `toml:"strategy"`
			Threshold float64 `toml:"threshold"`
			Workers   int     `toml:"workers"`
		} `toml:"detection"`
		Embedding struct {
			ModelPath string `toml:"model_path"`
		} `toml:"embedding"`
	}
	custom := payload{}
	custom.Sampling.IntervalSeconds = 0.5
	custom.Detection.Strategy = "Embedding"
	custom.Detection.Threshold = 0.25
	custom.Detection.Workers = 8
	custom.Embedding.ModelPath = filepath.Join(tempDir, "clip.onnx")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Sampling.IntervalSeconds != 0.5 {
		t.Fatalf("expected interval 0.5, got %v", cfg.Sampling.IntervalSeconds)
	}
	if cfg.Detection.Strategy != "embedding" {
		t.Fatalf("expected strategy to be lower-cased, got %q", cfg.Detection.Strategy)
	}
	if cfg.Detection.Threshold != 0.25 || cfg.Detection.Workers != 8 {
		t.Fatalf("unexpected detection settings: %+v", cfg.Detection)
	}
	if cfg.Embedding.InputName != "pixel_values" {
		t.Fatalf("expected default embedding input name, got %q", cfg.Embedding.InputName)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vast.toml")
	if err := os.WriteFile(configPath, []byte("[detection]\nthreshhold = 0.5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestStorageCredentialsFromEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vast.toml")
	body := "[storage]\nenabled = true\nendpoint = \"localhost:9000\"\nbucket = \"clips\"\nprefix = \"/runs/\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VAST_MINIO_ACCESS_KEY", "env-access")
	t.Setenv("VAST_MINIO_SECRET_KEY", "env-secret")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.AccessKey != "env-access" || cfg.Storage.SecretKey != "env-secret" {
		t.Fatalf("expected credentials from env, got %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
	if cfg.Storage.Prefix != "runs" {
		t.Fatalf("expected trimmed prefix, got %q", cfg.Storage.Prefix)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[detection]") {
		t.Fatalf("sample config missing detection section: %s", contents)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Detection.Threshold != config.Default().Detection.Threshold {
		t.Fatalf("sample threshold drifted from default: %v", cfg.Detection.Threshold)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero interval", func(c *config.Config) { c.Sampling.IntervalSeconds = 0 }},
		{"threshold zero", func(c *config.Config) { c.Detection.Threshold = 0 }},
		{"threshold one", func(c *config.Config) { c.Detection.Threshold = 1 }},
		{"unknown strategy", func(c *config.Config) { c.Detection.Strategy = "histogram" }},
		{"embedding without model", func(c *config.Config) { c.Detection.Strategy = "embedding" }},
		{"too many workers", func(c *config.Config) { c.Export.Workers = 1000 }},
		{"bad language", func(c *config.Config) { c.Transcription.Language = "not a language" }},
		{"storage without bucket", func(c *config.Config) {
			c.Storage.Enabled = true
			c.Storage.Endpoint = "localhost:9000"
		}},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
