package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Concurrency != 3 {
		t.Errorf("expected default concurrency 3, got %d", cfg.Concurrency)
	}
	if cfg.FreshnessWindow != 15*time.Second {
		t.Errorf("expected freshness window 15s, got %v", cfg.FreshnessWindow)
	}
	if cfg.Retry.JobsBackoff != 5*time.Second {
		t.Errorf("expected jobs backoff 5s, got %v", cfg.Retry.JobsBackoff)
	}
	if cfg.Retry.FetchBackoff != 10*time.Second {
		t.Errorf("expected fetch backoff 10s, got %v", cfg.Retry.FetchBackoff)
	}
	if cfg.Retry.PendingInterval != 30*time.Second {
		t.Errorf("expected pending interval 30s, got %v", cfg.Retry.PendingInterval)
	}
	if cfg.Format != "png" {
		t.Errorf("expected format png, got %s", cfg.Format)
	}
}

func TestLoadLegacyJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"user": "alice", "key": "s3cret"}`), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.User != "alice" || cfg.Key != "s3cret" {
		t.Errorf("expected credentials alice/s3cret, got %s/%s", cfg.User, cfg.Key)
	}
	if cfg.BaseURL != "http://clara.io/api/" {
		t.Errorf("expected default base URL preserved, got %s", cfg.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
user: bob
key: k
threads: 8
freshness_window: 1m
retry:
  attempts: 10
  factor: 1.5
  fetch_backoff: 2s
  pending_interval: 45s
  max_pending_waits: 20
storage:
  provider: blob
  bucket_url: mem://
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Concurrency != 8 {
		t.Errorf("expected threads 8, got %d", cfg.Concurrency)
	}
	if cfg.FreshnessWindow != time.Minute {
		t.Errorf("expected freshness 1m, got %v", cfg.FreshnessWindow)
	}
	if cfg.Retry.Attempts != 10 || cfg.Retry.Factor != 1.5 {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Retry.FetchBackoff != 2*time.Second || cfg.Retry.PendingInterval != 45*time.Second {
		t.Errorf("unexpected retry timings: %+v", cfg.Retry)
	}
	if cfg.Retry.JobsBackoff != 5*time.Second {
		t.Errorf("expected default jobs backoff preserved, got %v", cfg.Retry.JobsBackoff)
	}
	if cfg.Retry.MaxPendingWaits != 20 {
		t.Errorf("expected max pending waits 20, got %d", cfg.Retry.MaxPendingWaits)
	}
	if cfg.Storage.Provider != "blob" || cfg.Storage.BucketURL != "mem://" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("retry:\n  fetch_backoff: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Concurrency != Default().Concurrency {
		t.Error("expected defaults for a missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RENDERPULL_USER", "carol")
	t.Setenv("RENDERPULL_KEY", "key-1")
	t.Setenv("RENDERPULL_THREADS", "6")
	t.Setenv("RENDERPULL_PENDING_INTERVAL", "500ms")
	t.Setenv("RENDERPULL_RETRY_FACTOR", "3")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.User != "carol" || cfg.Key != "key-1" {
		t.Errorf("unexpected credentials %s/%s", cfg.User, cfg.Key)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("expected threads 6, got %d", cfg.Concurrency)
	}
	if cfg.Retry.PendingInterval != 500*time.Millisecond {
		t.Errorf("expected pending interval 500ms, got %v", cfg.Retry.PendingInterval)
	}
	if cfg.Retry.Factor != 3 {
		t.Errorf("expected factor 3, got %v", cfg.Retry.Factor)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("RENDERPULL_THREADS", "many")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid RENDERPULL_THREADS")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.User = "u"
	valid.Key = "k"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing user", func(c *Config) { c.User = "" }, true},
		{"missing key", func(c *Config) { c.Key = "" }, true},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, true},
		{"factor below one", func(c *Config) { c.Retry.Factor = 0.5 }, true},
		{"blob without url", func(c *Config) { c.Storage.Provider = "blob" }, true},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "ftp" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.User = "u"

	merged := base.Merge(Config{Concurrency: 12, Retry: RetryConfig{FetchBackoff: time.Second}})

	if merged.User != "u" {
		t.Errorf("expected User preserved, got %s", merged.User)
	}
	if merged.Concurrency != 12 {
		t.Errorf("expected Concurrency overridden to 12, got %d", merged.Concurrency)
	}
	if merged.Retry.FetchBackoff != time.Second {
		t.Errorf("expected FetchBackoff overridden, got %v", merged.Retry.FetchBackoff)
	}
	if merged.Retry.PendingInterval != 30*time.Second {
		t.Errorf("expected PendingInterval preserved, got %v", merged.Retry.PendingInterval)
	}
}
