// Package config loads renderpull settings.
//
// Values come from, in increasing precedence: Default(), the config file
// (~/.clara-io/config.json by default; YAML or JSON), RENDERPULL_* environment
// variables, and command-line flags merged in by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for renderpull.
type Config struct {
	User            string
	Key             string
	BaseURL         string
	ResourcesURL    string
	Concurrency     int
	Format          string
	Timeout         time.Duration
	FreshnessWindow time.Duration
	Retry           RetryConfig
	Storage         StorageConfig
	Redis           RedisConfig
	StatusAddr      string
}

// RetryConfig defines the retry and wait timings of the engine.
type RetryConfig struct {
	Attempts        int
	Factor          float64
	MaxBackoff      time.Duration
	JobsBackoff     time.Duration
	FetchBackoff    time.Duration
	PendingInterval time.Duration
	MaxPendingWaits int
}

// StorageConfig selects where frames are written.
type StorageConfig struct {
	Provider  string
	Root      string
	BucketURL string
}

// RedisConfig configures the worker queue.
type RedisConfig struct {
	Addr  string
	Queue string
}

// Default returns a Config with the reference timings.
func Default() Config {
	return Config{
		BaseURL:         "http://clara.io/api/",
		ResourcesURL:    "http://resources.clara.io/",
		Concurrency:     3,
		Format:          "png",
		Timeout:         5 * time.Minute,
		FreshnessWindow: 15 * time.Second,
		Retry: RetryConfig{
			Attempts:        5,
			Factor:          2,
			MaxBackoff:      2 * time.Minute,
			JobsBackoff:     5 * time.Second,
			FetchBackoff:    10 * time.Second,
			PendingInterval: 30 * time.Second,
		},
		Storage: StorageConfig{
			Provider: "localfs",
			Root:     ".",
		},
		Redis: RedisConfig{
			Addr:  "localhost:6379",
			Queue: "renderpull:requests",
		},
		StatusAddr: ":8090",
	}
}

// DefaultPath returns the location of the credentials file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".clara-io", "config.json")
	}
	return filepath.Join(home, ".clara-io", "config.json")
}

// fileConfig is used for unmarshaling with string durations.
type fileConfig struct {
	User            string          `yaml:"user"`
	Key             string          `yaml:"key"`
	BaseURL         string          `yaml:"base_url"`
	ResourcesURL    string          `yaml:"resources_url"`
	Concurrency     int             `yaml:"threads"`
	Format          string          `yaml:"format"`
	Timeout         string          `yaml:"timeout"`
	FreshnessWindow string          `yaml:"freshness_window"`
	Retry           fileRetryConfig `yaml:"retry"`
	Storage         StorageConfig   `yaml:"storage"`
	Redis           RedisConfig     `yaml:"redis"`
	StatusAddr      string          `yaml:"status_addr"`
}

type fileRetryConfig struct {
	Attempts        int     `yaml:"attempts"`
	Factor          float64 `yaml:"factor"`
	MaxBackoff      string  `yaml:"max_backoff"`
	JobsBackoff     string  `yaml:"jobs_backoff"`
	FetchBackoff    string  `yaml:"fetch_backoff"`
	PendingInterval string  `yaml:"pending_interval"`
	MaxPendingWaits int     `yaml:"max_pending_waits"`
}

// LoadFromFile loads configuration from a YAML or JSON file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		User:         fc.User,
		Key:          fc.Key,
		BaseURL:      fc.BaseURL,
		ResourcesURL: fc.ResourcesURL,
		Concurrency:  fc.Concurrency,
		Format:       fc.Format,
		Storage:      fc.Storage,
		Redis:        fc.Redis,
		StatusAddr:   fc.StatusAddr,
		Retry: RetryConfig{
			Attempts:        fc.Retry.Attempts,
			Factor:          fc.Retry.Factor,
			MaxPendingWaits: fc.Retry.MaxPendingWaits,
		},
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", fc.Timeout, &override.Timeout},
		{"freshness_window", fc.FreshnessWindow, &override.FreshnessWindow},
		{"retry.max_backoff", fc.Retry.MaxBackoff, &override.Retry.MaxBackoff},
		{"retry.jobs_backoff", fc.Retry.JobsBackoff, &override.Retry.JobsBackoff},
		{"retry.fetch_backoff", fc.Retry.FetchBackoff, &override.Retry.FetchBackoff},
		{"retry.pending_interval", fc.Retry.PendingInterval, &override.Retry.PendingInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return Default().Merge(override), nil
}

// LoadOptional loads path if it exists and falls back to Default() otherwise.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RENDERPULL_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"RENDERPULL_USER":          &c.User,
		"RENDERPULL_KEY":           &c.Key,
		"RENDERPULL_BASE_URL":      &c.BaseURL,
		"RENDERPULL_RESOURCES_URL": &c.ResourcesURL,
		"RENDERPULL_FORMAT":        &c.Format,
		"RENDERPULL_STORAGE":       &c.Storage.Provider,
		"RENDERPULL_STORAGE_ROOT":  &c.Storage.Root,
		"RENDERPULL_BUCKET_URL":    &c.Storage.BucketURL,
		"RENDERPULL_REDIS_ADDR":    &c.Redis.Addr,
		"RENDERPULL_QUEUE":         &c.Redis.Queue,
		"RENDERPULL_STATUS_ADDR":   &c.StatusAddr,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RENDERPULL_THREADS":           &c.Concurrency,
		"RENDERPULL_RETRY_ATTEMPTS":    &c.Retry.Attempts,
		"RENDERPULL_MAX_PENDING_WAITS": &c.Retry.MaxPendingWaits,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"RENDERPULL_TIMEOUT":          &c.Timeout,
		"RENDERPULL_FRESHNESS_WINDOW": &c.FreshnessWindow,
		"RENDERPULL_MAX_BACKOFF":      &c.Retry.MaxBackoff,
		"RENDERPULL_JOBS_BACKOFF":     &c.Retry.JobsBackoff,
		"RENDERPULL_FETCH_BACKOFF":    &c.Retry.FetchBackoff,
		"RENDERPULL_PENDING_INTERVAL": &c.Retry.PendingInterval,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("RENDERPULL_RETRY_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse RENDERPULL_RETRY_FACTOR: %w", err)
		}
		c.Retry.Factor = f
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.User == "" || c.Key == "" {
		return errors.New("config: username or API key not found")
	}
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.ResourcesURL == "" {
		return errors.New("config: resources_url is required")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Factor < 1 {
		return errors.New("config: retry.factor must be at least 1")
	}
	switch c.Storage.Provider {
	case "localfs":
	case "blob":
		if c.Storage.BucketURL == "" {
			return errors.New("config: storage.bucket_url is required for the blob provider")
		}
	default:
		return fmt.Errorf("config: unknown storage provider %q", c.Storage.Provider)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setStr(&c.User, override.User)
	setStr(&c.Key, override.Key)
	setStr(&c.BaseURL, override.BaseURL)
	setStr(&c.ResourcesURL, override.ResourcesURL)
	setStr(&c.Format, override.Format)
	setStr(&c.Storage.Provider, override.Storage.Provider)
	setStr(&c.Storage.Root, override.Storage.Root)
	setStr(&c.Storage.BucketURL, override.Storage.BucketURL)
	setStr(&c.Redis.Addr, override.Redis.Addr)
	setStr(&c.Redis.Queue, override.Redis.Queue)
	setStr(&c.StatusAddr, override.StatusAddr)
	setInt(&c.Concurrency, override.Concurrency)
	setInt(&c.Retry.Attempts, override.Retry.Attempts)
	setInt(&c.Retry.MaxPendingWaits, override.Retry.MaxPendingWaits)
	setDur(&c.Timeout, override.Timeout)
	setDur(&c.FreshnessWindow, override.FreshnessWindow)
	setDur(&c.Retry.MaxBackoff, override.Retry.MaxBackoff)
	setDur(&c.Retry.JobsBackoff, override.Retry.JobsBackoff)
	setDur(&c.Retry.FetchBackoff, override.Retry.FetchBackoff)
	setDur(&c.Retry.PendingInterval, override.Retry.PendingInterval)
	if override.Retry.Factor != 0 {
		c.Retry.Factor = override.Retry.Factor
	}
	return c
}
