// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package config

import "time"

// Config holds all application configuration.
type Config struct {
	Cache      CacheConfig      `koanf:"cache"`
	Loader     LoaderConfig     `koanf:"loader"`
	Perf       PerfConfig       `koanf:"perf"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Fanout     FanoutConfig     `koanf:"fanout"`
	Migration  MigrationConfig  `koanf:"migration"`
	Repository RepositoryConfig `koanf:"repository"`
	Surfaces   SurfacesConfig   `koanf:"surfaces"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// CacheConfig configures the BadgerDB-backed widget cache.
type CacheConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps the cache in memory only (tests, ephemeral runs).
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every write.
	// Default: false
	SyncWrites bool `koanf:"sync_writes"`

	// Compression enables Snappy block compression.
	// Default: true
	Compression bool `koanf:"compression"`

	// MaxAge is the freshness threshold for cached periods.
	// Default: 30m
	MaxAge time.Duration `koanf:"max_age"`

	// GCInterval is how often the value log garbage collector runs.
	// Default: 10m
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the discard ratio passed to RunValueLogGC.
	// Default: 0.5
	GCRatio float64 `koanf:"gc_ratio"`

	// MemTableSize and ValueLogFileSize tune BadgerDB. The widget cache is
	// small, so both default to 16MB.
	MemTableSize     int64 `koanf:"mem_table_size"`
	ValueLogFileSize int64 `koanf:"value_log_file_size"`
}

// LoaderConfig configures the data loader fallback chain.
type LoaderConfig struct {
	// FetchTimeout bounds one live repository fetch.
	// Default: 5s
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// MaxGoalsPerWeek caps the goals shown for one period.
	// Default: 6
	MaxGoalsPerWeek int `koanf:"max_goals_per_week"`

	// WeeksBack is how many previous weeks the refresh window covers.
	// Default: 4
	WeeksBack int `koanf:"weeks_back"`

	// Circuit breaker around the repository.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests"`

	// Token bucket pacing repository calls.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`
}

// PerfConfig configures the performance optimizer.
type PerfConfig struct {
	// UpdateBudget is the hard timeout for a single widget update.
	// Default: 1s
	UpdateBudget time.Duration `koanf:"update_budget"`

	// MemoryThresholdMB is the per-operation heap delta that triggers a cache
	// trim and GC hint.
	// Default: 20
	MemoryThresholdMB float64 `koanf:"memory_threshold_mb"`

	// OptimizeThresholdMB is the heap size above which OptimizeMemory clears
	// the cache.
	// Default: 40
	OptimizeThresholdMB float64 `koanf:"optimize_threshold_mb"`

	// SlowLogThreshold logs samples slower than this.
	// Default: 500ms
	SlowLogThreshold time.Duration `koanf:"slow_log_threshold"`

	// Workers bounds BatchMonitor concurrency.
	// Default: 4
	Workers int `koanf:"workers"`

	// Adaptive refresh intervals.
	BaseInterval      time.Duration `koanf:"base_interval"`
	ElevatedInterval  time.Duration `koanf:"elevated_interval"`
	LowMemoryInterval time.Duration `koanf:"low_memory_interval"`

	// LowMemoryRatio is the fraction of the runtime memory limit above which
	// the process counts as low on memory.
	// Default: 0.85
	LowMemoryRatio float64 `koanf:"low_memory_ratio"`
}

// SchedulerConfig configures the update scheduler and job host.
type SchedulerConfig struct {
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffMax  time.Duration `koanf:"backoff_max"`

	// MaxAttempts before a job is terminally failed.
	// Default: 3
	MaxAttempts int `koanf:"max_attempts"`

	// FlexMax caps the periodic flex window.
	// Default: 15m
	FlexMax time.Duration `koanf:"flex_max"`

	// ImmediateRate and ImmediateBurst throttle one-shot refresh requests.
	ImmediateRate  float64 `koanf:"immediate_rate"`
	ImmediateBurst int     `koanf:"immediate_burst"`

	// ConstraintRecheck is how long a due job waits before re-evaluating
	// unmet network/battery constraints.
	// Default: 1m
	ConstraintRecheck time.Duration `koanf:"constraint_recheck"`

	// MaxIntervalMultiplier caps periodic back-off.
	// Default: 8
	MaxIntervalMultiplier int `koanf:"max_interval_multiplier"`
}

// FanoutConfig configures the data change broadcast.
type FanoutConfig struct {
	// Topic is the watermill topic data change events are broadcast on.
	// Default: widget.data_changed
	Topic string `koanf:"topic"`

	OutputBuffer int64         `koanf:"output_buffer"`
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// StepTimeout bounds the direct render refresh step.
	// Default: 2s
	StepTimeout time.Duration `koanf:"step_timeout"`
}

// MigrationConfig configures the migration guard.
type MigrationConfig struct {
	// LegacyDir holds the pre-versioned JSON files.
	LegacyDir string `koanf:"legacy_dir"`

	// BackupDir receives tar.gz backups of the legacy files.
	BackupDir string `koanf:"backup_dir"`

	// TargetVersion is the schema version this build migrates to.
	// Default: 1
	TargetVersion int `koanf:"target_version"`
}

// RepositoryConfig configures the standalone goal source used by the daemon.
type RepositoryConfig struct {
	// GoalsPath is a JSON file holding the goal records.
	GoalsPath string `koanf:"goals_path"`

	// NetworkAvailable and SignedIn seed the connectivity and auth
	// collaborators. Both can be flipped at runtime through the admin API.
	NetworkAvailable bool `koanf:"network_available"`
	SignedIn         bool `koanf:"signed_in"`
}

// SurfacesConfig lists the widget instance ids placed on each layout.
type SurfacesConfig struct {
	Widgets2x2 []int `koanf:"widgets_2x2"`
	Widgets2x3 []int `koanf:"widgets_2x3"`
	Widgets3x2 []int `koanf:"widgets_3x2"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes file:line in log entries.
	Caller bool `koanf:"caller"`
}

// SupervisorConfig configures the suture supervisor tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
