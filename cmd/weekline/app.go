// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/weekline/internal/cachestore"
	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/fanout"
	"github.com/tomtom215/weekline/internal/initializer"
	"github.com/tomtom215/weekline/internal/loader"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/migration"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/perf"
	"github.com/tomtom215/weekline/internal/render"
	"github.com/tomtom215/weekline/internal/scheduler"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// app holds the wired widget system.
type app struct {
	store       *cachestore.Store
	states      *widgetstate.Store
	device      *loader.Device
	loader      *loader.Loader
	registry    *render.Registry
	scheduler   *scheduler.Scheduler
	compactor   *cachestore.Compactor
	bus         *gochannel.GoChannel
	notifier    *fanout.Notifier
	listener    *fanout.Listener
	initializer *initializer.Initializer
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := cachestore.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open widget cache: %w", err)
	}

	a := &app{store: store}
	a.states = widgetstate.New(store.DB())
	a.device = loader.NewDevice(cfg.Repository.NetworkAvailable, cfg.Repository.SignedIn)

	repo := loader.NewJSONFileRepository(cfg.Repository.GoalsPath)
	a.loader = loader.New(cfg.Loader, cfg.Cache.MaxAge, repo, store,
		loader.WithConnectivity(a.device),
		loader.WithAuth(a.device),
		loader.WithStates(a.states),
	)

	opt := perf.New(cfg.Perf)
	a.registry = render.NewRegistry(opt)
	for kind, ids := range map[render.Kind][]int{
		render.Size2x2: cfg.Surfaces.Widgets2x2,
		render.Size2x3: cfg.Surfaces.Widgets2x3,
		render.Size3x2: cfg.Surfaces.Widgets3x2,
	} {
		if len(ids) > 0 {
			a.registry.Register(render.NewLogSurface(kind, store, a.states, ids...))
		}
	}

	host := scheduler.NewLocalHost(scheduler.HostConfig{
		DefaultBackoff: scheduler.Backoff{
			Policy: scheduler.Exponential,
			Base:   cfg.Scheduler.BackoffBase,
			Max:    cfg.Scheduler.BackoffMax,
		},
		DefaultMaxAttempts: cfg.Scheduler.MaxAttempts,
		ConstraintRecheck:  cfg.Scheduler.ConstraintRecheck,
	}, a.device)
	host.OnJobFailed(a.jobFailed)

	job := &scheduler.RefreshJob{
		Loader:    a.loader,
		Surfaces:  a.registry,
		Optimizer: opt,
		Memory:    opt,
		WeeksBack: cfg.Loader.WeeksBack,
		OnLoaded:  a.clearWidgetErrors,
	}
	interval := func() time.Duration { return opt.IntervalFor(a.preferredInterval()) }
	a.scheduler = scheduler.New(cfg.Scheduler, host, interval, job.Run)
	job.OnHealthy = a.scheduler.ResetBackoff

	opt.SetBackoff(a.scheduler)
	opt.SetCacheTrimmer(cachestore.NewWindowTrimmer(store, cfg.Loader.WeeksBack))
	opt.SetFallback(a.registry)

	a.compactor = cachestore.NewCompactor(store, cfg.Cache.GCInterval, cfg.Loader.WeeksBack)

	a.bus = fanout.NewBus(cfg.Fanout)
	a.notifier = fanout.NewNotifier(cfg.Fanout, a.registry, a.scheduler, a.bus)
	a.listener = fanout.NewListener(cfg.Fanout, a.bus, a.registry, a.states)

	guard := migration.New(store.DB(), cfg.Migration, store, a.states)
	a.initializer = initializer.New(initializer.Deps{
		Migrator:  guard,
		States:    a.states,
		Loader:    a.loader,
		Scheduler: a.scheduler,
		Cache:     store,
	})

	return a, nil
}

// jobFailed surfaces terminal refresh failures on every placed widget.
// A signed-out user sees the authentication message; other failures keep
// the last drawn data.
func (a *app) jobFailed(ev scheduler.JobFailed) {
	logging.Warn().
		Err(ev.Err).
		Str("job_id", ev.ID).
		Str("identity", ev.Identity).
		Int("attempts", ev.Attempts).
		Bool("permanent", ev.Permanent).
		Msg("Refresh job failed")

	if !errors.Is(ev.Err, scheduler.ErrSignedOut) {
		return
	}
	for _, id := range a.registry.WidgetIDs() {
		if err := a.states.RecordError(id, models.NewWidgetError(models.ErrorAuthentication)); err != nil {
			logging.Warn().Err(err).Int("widget_id", id).Msg("Failed to record widget error")
		}
	}
}

// preferredInterval is the user's update interval, or zero when the
// preferences cannot be read.
func (a *app) preferredInterval() time.Duration {
	prefs, err := a.states.LoadPreferences()
	if err != nil {
		return 0
	}
	return time.Duration(prefs.UpdateIntervalMinutes) * time.Minute
}

// clearWidgetErrors drops the shown error of every placed widget once a
// refresh has loaded live data again.
func (a *app) clearWidgetErrors(context.Context) {
	for _, id := range a.registry.WidgetIDs() {
		if err := a.states.ClearError(id); err != nil {
			logging.Warn().Err(err).Int("widget_id", id).Msg("Failed to clear widget error")
		}
	}
}

// Close releases the bus and the cache.
func (a *app) Close() {
	if err := a.bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close fan-out bus")
	}
	if err := a.store.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close widget cache")
	}
}
