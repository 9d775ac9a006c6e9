// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package initializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/loader"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/migration"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/scheduler"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// Migrator runs the legacy data migration.
type Migrator interface {
	Run(ctx context.Context) migration.RunReport
	MigrationStatus() models.MigrationStatus
}

// PreferenceStore owns the widget preferences and per-instance state.
type PreferenceStore interface {
	LoadPreferences() (widgetstate.Preferences, error)
	SavePreferences(prefs widgetstate.Preferences) (widgetstate.Preferences, error)
	ResetAll() error
}

// Preloader warms the cache for the current and previous week.
type Preloader interface {
	Preload(ctx context.Context) []loader.PeriodOutcome
	BreakerState() string
}

// JobScheduler owns the refresh jobs.
type JobScheduler interface {
	SchedulePeriodic() (scheduler.JobStatus, error)
	ForceNow() (scheduler.JobStatus, error)
	CancelAll() int
	Summary() scheduler.Summary
}

// Cache is the widget cache.
type Cache interface {
	Clear()
	Periods() []models.Period
}

// Deps are the collaborators an Initializer coordinates. Migrator may be nil.
type Deps struct {
	Migrator  Migrator
	States    PreferenceStore
	Loader    Preloader
	Scheduler JobScheduler
	Cache     Cache
}

// Health is the widget system status.
type Health struct {
	Healthy       bool                    `json:"healthy"`
	Initialized   bool                    `json:"initialized"`
	Migration     models.MigrationStatus  `json:"migration"`
	CachedPeriods int                     `json:"cached_periods"`
	BreakerState  string                  `json:"breaker_state"`
	Scheduler     scheduler.Summary       `json:"scheduler"`
	Preferences   widgetstate.Preferences `json:"preferences"`
	LastInit      time.Time               `json:"last_init,omitempty"`
	LastError     string                  `json:"last_error,omitempty"`
}

// Initializer brings the widget system up at startup and serves the
// maintenance operations exposed by the admin API.
type Initializer struct {
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	lastInit    time.Time
	lastErr     error
}

// New creates an Initializer.
func New(deps Deps) *Initializer {
	return &Initializer{
		deps:   deps,
		now:    time.Now,
		logger: logging.WithComponent("initializer"),
	}
}

// Initialize migrates legacy data, normalizes the preferences, preloads the
// current and previous week and schedules the periodic refresh when auto
// update is enabled. Every step runs even if an earlier one failed; the
// returned error joins the failures.
func (i *Initializer) Initialize(ctx context.Context) error {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	log.Info().Msg("Initializing widget system")

	var errs []error

	if i.deps.Migrator != nil {
		report := i.deps.Migrator.Run(ctx)
		if !report.Migration.Success {
			errs = append(errs, fmt.Errorf("migration: %w", report.Migration.Err))
		}
		log.Info().
			Bool("backup", report.Backup.Success).
			Bool("degraded", report.Degraded).
			Bool("migrated", report.Migration.Success).
			Bool("cleaned_up", report.CleanedUp).
			Msg("Migration guard finished")
	}

	prefs, err := i.validatePreferences()
	if err != nil {
		errs = append(errs, err)
	}

	outcomes := i.deps.Loader.Preload(ctx)
	loaded := 0
	for _, o := range outcomes {
		if o.Outcome.IsSuccess() {
			loaded++
		}
	}
	log.Info().Int("periods", len(outcomes)).Int("loaded", loaded).Msg("Widget data preloaded")

	if prefs.AutoUpdateEnabled {
		if _, err := i.deps.Scheduler.SchedulePeriodic(); err != nil {
			errs = append(errs, fmt.Errorf("schedule periodic refresh: %w", err))
		}
	} else {
		log.Info().Msg("Auto update disabled, periodic refresh not scheduled")
	}

	joined := errors.Join(errs...)

	i.mu.Lock()
	i.initialized = true
	i.lastInit = i.now()
	i.lastErr = joined
	i.mu.Unlock()

	if joined != nil {
		log.Warn().Err(joined).Msg("Widget system initialized with errors")
	} else {
		log.Info().Msg("Widget system initialized")
	}
	return joined
}

// validatePreferences stores the normalized preferences. Unreadable
// preferences are replaced by the defaults.
func (i *Initializer) validatePreferences() (widgetstate.Preferences, error) {
	prefs, err := i.deps.States.LoadPreferences()
	if err != nil {
		i.logger.Warn().Err(err).Msg("Preferences unreadable, restoring defaults")
		prefs = widgetstate.DefaultPreferences()
	}
	saved, err := i.deps.States.SavePreferences(prefs)
	if err != nil {
		return saved, fmt.Errorf("save preferences: %w", err)
	}
	i.logger.Debug().
		Str("widget_size", string(saved.WidgetSize)).
		Bool("auto_update", saved.AutoUpdateEnabled).
		Int("interval_minutes", saved.UpdateIntervalMinutes).
		Msg("Widget preferences validated")
	return saved, nil
}

// Health reports the widget system status.
func (i *Initializer) Health() Health {
	i.mu.Lock()
	h := Health{
		Initialized: i.initialized,
		LastInit:    i.lastInit,
	}
	if i.lastErr != nil {
		h.LastError = i.lastErr.Error()
	}
	i.mu.Unlock()

	if i.deps.Migrator != nil {
		h.Migration = i.deps.Migrator.MigrationStatus()
	}
	h.CachedPeriods = len(i.deps.Cache.Periods())
	h.BreakerState = i.deps.Loader.BreakerState()
	h.Scheduler = i.deps.Scheduler.Summary()

	prefs, err := i.deps.States.LoadPreferences()
	h.Preferences = prefs
	if err != nil && h.LastError == "" {
		h.LastError = err.Error()
	}

	h.Healthy = h.Initialized && h.LastError == "" && h.BreakerState != "open"
	return h
}

// ForceRefreshAll runs a forced refresh of every period and widget now.
func (i *Initializer) ForceRefreshAll(ctx context.Context) (scheduler.JobStatus, error) {
	logging.Ctx(ctx).Info().Msg("Force refreshing all widgets")
	return i.deps.Scheduler.ForceNow()
}

// ResetWidgetData cancels every job, clears the cache, resets widget state
// and preferences, then reschedules and forces a refresh.
func (i *Initializer) ResetWidgetData(ctx context.Context) error {
	log := logging.Ctx(ctx)
	log.Info().Msg("Resetting widget data")

	cancelled := i.deps.Scheduler.CancelAll()
	i.deps.Cache.Clear()

	var errs []error
	if err := i.deps.States.ResetAll(); err != nil {
		errs = append(errs, fmt.Errorf("reset widget state: %w", err))
	}
	prefs, err := i.deps.States.SavePreferences(widgetstate.DefaultPreferences())
	if err != nil {
		errs = append(errs, fmt.Errorf("reset preferences: %w", err))
	}
	if prefs.AutoUpdateEnabled {
		if _, err := i.deps.Scheduler.SchedulePeriodic(); err != nil {
			errs = append(errs, fmt.Errorf("reschedule periodic refresh: %w", err))
		}
	}
	if _, err := i.deps.Scheduler.ForceNow(); err != nil {
		errs = append(errs, fmt.Errorf("force refresh: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("Widget data reset incomplete")
		return err
	}
	log.Info().Int("cancelled_jobs", cancelled).Msg("Widget data reset completed")
	return nil
}
