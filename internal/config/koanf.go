// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"weekline.yaml",
	"weekline.yml",
	"/etc/weekline/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "WEEKLINE_CONFIG"

// envPrefix is stripped from environment variable names before mapping.
const envPrefix = "weekline_"

// defaultConfig returns a Config with every default applied. Defaults load
// first, then the config file, then the environment.
func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Path:             "./data/cache",
			InMemory:         false,
			SyncWrites:       false,
			Compression:      true,
			MaxAge:           30 * time.Minute,
			GCInterval:       10 * time.Minute,
			GCRatio:          0.5,
			MemTableSize:     16 << 20,
			ValueLogFileSize: 16 << 20,
		},
		Loader: LoaderConfig{
			FetchTimeout:            5 * time.Second,
			MaxGoalsPerWeek:         6,
			WeeksBack:               4,
			BreakerFailureThreshold: 3,
			BreakerTimeout:          time.Minute,
			BreakerMaxRequests:      1,
			RatePerSecond:           5,
			RateBurst:               5,
		},
		Perf: PerfConfig{
			UpdateBudget:        time.Second,
			MemoryThresholdMB:   20,
			OptimizeThresholdMB: 40,
			SlowLogThreshold:    500 * time.Millisecond,
			Workers:             4,
			BaseInterval:        30 * time.Minute,
			ElevatedInterval:    45 * time.Minute,
			LowMemoryInterval:   60 * time.Minute,
			LowMemoryRatio:      0.85,
		},
		Scheduler: SchedulerConfig{
			BackoffBase:           30 * time.Second,
			BackoffMax:            10 * time.Minute,
			MaxAttempts:           3,
			FlexMax:               15 * time.Minute,
			ImmediateRate:         1,
			ImmediateBurst:        3,
			ConstraintRecheck:     time.Minute,
			MaxIntervalMultiplier: 8,
		},
		Fanout: FanoutConfig{
			Topic:        "widget.data_changed",
			OutputBuffer: 64,
			CloseTimeout: 10 * time.Second,
			StepTimeout:  2 * time.Second,
		},
		Migration: MigrationConfig{
			LegacyDir:     "./data/legacy",
			BackupDir:     "./data/backups",
			TargetVersion: 1,
		},
		Repository: RepositoryConfig{
			GoalsPath:        "./data/goals.json",
			NetworkAvailable: true,
			SignedIn:         true,
		},
		Surfaces: SurfacesConfig{
			Widgets2x3: []int{1},
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8087,
			Timeout:           30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// DefaultConfig returns a validated copy of the defaults, for tests and
// embedding.
func DefaultConfig() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration in layers:
//  1. Struct defaults
//  2. YAML config file (WEEKLINE_CONFIG or DefaultConfigPaths)
//  3. WEEKLINE_* environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps WEEKLINE_* variables (prefix stripped, lower-cased) to
// koanf paths.
var envMappings = map[string]string{
	"cache_path":        "cache.path",
	"cache_in_memory":   "cache.in_memory",
	"cache_sync_writes": "cache.sync_writes",
	"cache_max_age":     "cache.max_age",
	"cache_gc_interval": "cache.gc_interval",

	"fetch_timeout":           "loader.fetch_timeout",
	"max_goals_per_week":      "loader.max_goals_per_week",
	"weeks_back":              "loader.weeks_back",
	"breaker_threshold":       "loader.breaker_failure_threshold",
	"breaker_timeout":         "loader.breaker_timeout",
	"repository_rate":         "loader.rate_per_second",
	"repository_rate_burst":   "loader.rate_burst",
	"update_budget":           "perf.update_budget",
	"memory_threshold_mb":     "perf.memory_threshold_mb",
	"perf_workers":            "perf.workers",
	"base_interval":           "perf.base_interval",
	"backoff_base":            "scheduler.backoff_base",
	"backoff_max":             "scheduler.backoff_max",
	"max_attempts":            "scheduler.max_attempts",
	"flex_max":                "scheduler.flex_max",
	"immediate_rate":          "scheduler.immediate_rate",
	"immediate_burst":         "scheduler.immediate_burst",
	"broadcast_topic":         "fanout.topic",
	"legacy_dir":              "migration.legacy_dir",
	"backup_dir":              "migration.backup_dir",
	"goals_path":              "repository.goals_path",
	"network_available":       "repository.network_available",
	"signed_in":               "repository.signed_in",
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_timeout":            "server.timeout",
	"rate_limit_requests":     "server.rate_limit_requests",
	"rate_limit_disabled":     "server.rate_limit_disabled",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
	"supervisor_backoff":      "supervisor.failure_backoff",
	"supervisor_shutdown":     "supervisor.shutdown_timeout",
	"supervisor_failure_rate": "supervisor.failure_threshold",
}

// envTransformFunc maps an environment variable to a koanf path. Unknown and
// unprefixed variables return "" and are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if !strings.HasPrefix(key, envPrefix) {
		return ""
	}
	return envMappings[strings.TrimPrefix(key, envPrefix)]
}
