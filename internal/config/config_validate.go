// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLoader(); err != nil {
		return err
	}
	if err := c.validatePerf(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateFanout(); err != nil {
		return err
	}
	if err := c.validateMigration(); err != nil {
		return err
	}
	if err := c.validateSurfaces(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCache() error {
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required unless cache.in_memory is set")
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("cache.max_age must be positive, got %v", c.Cache.MaxAge)
	}
	if c.Cache.GCRatio <= 0 || c.Cache.GCRatio >= 1 {
		return fmt.Errorf("cache.gc_ratio must be in (0, 1), got %v", c.Cache.GCRatio)
	}
	if c.Cache.GCInterval <= 0 {
		return fmt.Errorf("cache.gc_interval must be positive")
	}
	return nil
}

func (c *Config) validateLoader() error {
	if c.Loader.FetchTimeout <= 0 {
		return fmt.Errorf("loader.fetch_timeout must be positive")
	}
	if c.Loader.MaxGoalsPerWeek < 1 {
		return fmt.Errorf("loader.max_goals_per_week must be at least 1, got %d", c.Loader.MaxGoalsPerWeek)
	}
	if c.Loader.WeeksBack < 0 || c.Loader.WeeksBack > 4 {
		return fmt.Errorf("loader.weeks_back must be between 0 and 4, got %d", c.Loader.WeeksBack)
	}
	if c.Loader.BreakerFailureThreshold == 0 {
		return fmt.Errorf("loader.breaker_failure_threshold must be at least 1")
	}
	if c.Loader.RatePerSecond <= 0 || c.Loader.RateBurst < 1 {
		return fmt.Errorf("loader.rate_per_second and loader.rate_burst must be positive")
	}
	return nil
}

func (c *Config) validatePerf() error {
	if c.Perf.UpdateBudget <= 0 {
		return fmt.Errorf("perf.update_budget must be positive")
	}
	if c.Perf.Workers < 1 {
		return fmt.Errorf("perf.workers must be at least 1, got %d", c.Perf.Workers)
	}
	if c.Perf.MemoryThresholdMB <= 0 || c.Perf.OptimizeThresholdMB < c.Perf.MemoryThresholdMB {
		return fmt.Errorf("perf.optimize_threshold_mb must be >= perf.memory_threshold_mb > 0")
	}
	if c.Perf.BaseInterval <= 0 || c.Perf.ElevatedInterval < c.Perf.BaseInterval || c.Perf.LowMemoryInterval < c.Perf.ElevatedInterval {
		return fmt.Errorf("perf intervals must satisfy 0 < base <= elevated <= low_memory")
	}
	if c.Perf.LowMemoryRatio <= 0 || c.Perf.LowMemoryRatio > 1 {
		return fmt.Errorf("perf.low_memory_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("scheduler.max_attempts must be at least 1, got %d", c.Scheduler.MaxAttempts)
	}
	if c.Scheduler.BackoffBase <= 0 || c.Scheduler.BackoffMax < c.Scheduler.BackoffBase {
		return fmt.Errorf("scheduler.backoff_max must be >= scheduler.backoff_base > 0")
	}
	if c.Scheduler.FlexMax < 0 {
		return fmt.Errorf("scheduler.flex_max must not be negative")
	}
	if c.Scheduler.ImmediateRate <= 0 || c.Scheduler.ImmediateBurst < 1 {
		return fmt.Errorf("scheduler.immediate_rate and scheduler.immediate_burst must be positive")
	}
	if c.Scheduler.MaxIntervalMultiplier < 1 {
		return fmt.Errorf("scheduler.max_interval_multiplier must be at least 1")
	}
	return nil
}

func (c *Config) validateFanout() error {
	if strings.TrimSpace(c.Fanout.Topic) == "" {
		return fmt.Errorf("fanout.topic is required")
	}
	if c.Fanout.StepTimeout <= 0 {
		return fmt.Errorf("fanout.step_timeout must be positive")
	}
	return nil
}

func (c *Config) validateMigration() error {
	if c.Migration.TargetVersion < 1 {
		return fmt.Errorf("migration.target_version must be at least 1")
	}
	if c.Migration.LegacyDir == "" || c.Migration.BackupDir == "" {
		return fmt.Errorf("migration.legacy_dir and migration.backup_dir are required")
	}
	return nil
}

// validateSurfaces rejects negative ids and an id placed on two layouts.
func (c *Config) validateSurfaces() error {
	seen := make(map[int]string)
	layouts := []struct {
		name string
		ids  []int
	}{
		{"widgets_2x2", c.Surfaces.Widgets2x2},
		{"widgets_2x3", c.Surfaces.Widgets2x3},
		{"widgets_3x2", c.Surfaces.Widgets3x2},
	}
	for _, l := range layouts {
		for _, id := range l.ids {
			if id < 0 {
				return fmt.Errorf("surfaces.%s: widget id must be non-negative, got %d", l.name, id)
			}
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("surfaces: widget %d is placed on both %s and %s", id, prev, l.name)
			}
			seen[id] = l.name
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && (c.Server.RateLimitRequests < 1 || c.Server.RateLimitWindow <= 0) {
		return fmt.Errorf("server rate limit requires positive requests and window")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
