// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/weekline/internal/loader"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/perf"
)

var (
	// ErrAllPeriodsFailed is returned when no period in the window loaded.
	ErrAllPeriodsFailed = errors.New("every period failed to load")

	// ErrSignedOut is the permanent failure when every period needs sign-in.
	ErrSignedOut = errors.New("user action required: sign in")
)

// WindowLoader loads the refresh window.
type WindowLoader interface {
	LoadWindow(ctx context.Context, now time.Time, weeksBack int, force bool) []loader.PeriodOutcome
}

// SurfaceRefresher redraws every widget surface.
type SurfaceRefresher interface {
	RefreshAll(ctx context.Context) []models.PerformanceSample
}

// SampleApplier applies corrective actions for samples.
type SampleApplier interface {
	ApplyAll(samples []models.PerformanceSample) []perf.Action
}

// MemoryGuard reports memory pressure and relieves it.
type MemoryGuard interface {
	IsLowMemory() bool
	OptimizeMemory() bool
}

// RefreshJob is the body of every widget refresh job: force-load the current
// week and the previous weeks, then redraw every surface under the
// performance monitor.
type RefreshJob struct {
	Loader    WindowLoader
	Surfaces  SurfaceRefresher
	Optimizer SampleApplier
	WeeksBack int
	Now       func() time.Time

	// Memory, when set, turns forced loads into cache-first loads under
	// memory pressure and runs OptimizeMemory after the redraw.
	Memory MemoryGuard

	// OnLoaded runs before the redraw when at least one period loaded without
	// falling back to the stale cache.
	OnLoaded func(ctx context.Context)

	// OnHealthy runs after a run where every period loaded and no back-off
	// was needed.
	OnHealthy func()
}

// Run executes one refresh.
func (j *RefreshJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	log := logging.Ctx(ctx)

	force := true
	if j.Memory != nil && j.Memory.IsLowMemory() {
		force = false
		log.Warn().Msg("Low memory, serving fresh cache instead of forcing live loads")
	}
	results := j.Loader.LoadWindow(ctx, now(), j.WeeksBack, force)

	failed, auth, live := 0, 0, 0
	for _, r := range results {
		if !r.Outcome.IsError() {
			if !r.Outcome.IsStale {
				live++
			}
			continue
		}
		failed++
		if r.Outcome.ErrorKind() == models.ErrorAuthentication {
			auth++
		}
	}

	if live > 0 && j.OnLoaded != nil {
		j.OnLoaded(ctx)
	}

	var actions []perf.Action
	if j.Surfaces != nil {
		samples := j.Surfaces.RefreshAll(ctx)
		if j.Optimizer != nil {
			actions = j.Optimizer.ApplyAll(samples)
		}
	}
	if j.Memory != nil && j.Memory.OptimizeMemory() {
		actions = append(actions, perf.ActionClearCache)
	}

	log.Info().
		Int("periods", len(results)).
		Int("failed", failed).
		Int("corrective_actions", len(actions)).
		Msg("Widget refresh finished")

	if len(results) > 0 && failed == len(results) {
		if auth == failed {
			return Permanent(ErrSignedOut)
		}
		return fmt.Errorf("%w (%d periods)", ErrAllPeriodsFailed, failed)
	}

	if failed == 0 && j.OnHealthy != nil && !containsAction(actions, perf.ActionBackOff) {
		j.OnHealthy()
	}
	return nil
}

func containsAction(actions []perf.Action, want perf.Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}
