// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package main is the weekline daemon.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, weekline.yaml, WEEKLINE_* env)
//  2. BadgerDB widget cache, shared by widget state and the migration guard
//  3. Performance optimizer, render surfaces, data loader, scheduler
//  4. Fan-out notifier and bus listener (watermill gochannel)
//  5. Initializer: legacy migration, preference check, preload, periodic job
//  6. Supervisor tree: compactor, job host, listener, admin HTTP API
//
// SIGINT and SIGTERM cancel the tree; every service shuts down within the
// configured timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/weekline/internal/api"
	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/supervisor"
	"github.com/tomtom215/weekline/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("cache_path", cfg.Cache.Path).
		Bool("in_memory", cfg.Cache.InMemory).
		Str("goals_path", cfg.Repository.GoalsPath).
		Msg("Starting weekline")

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build widget system")
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.initializer.Initialize(ctx); err != nil {
		// Startup continues; the health endpoint reports the failure.
		logging.Warn().Err(err).Msg("Widget system started degraded")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewStartStopService("cache-compactor", app.compactor))
	tree.AddMessagingService(services.NewStartStopService("job-host", app.scheduler))
	tree.AddMessagingService(services.NewStartStopService("fanout-listener", app.listener))

	handler := api.NewHandler(api.HandlerDeps{
		Notifier:    app.notifier,
		Maintenance: app.initializer,
		States:      app.states,
		Widgets:     app.registry,
		Loader:      app.loader,
		Device:      app.device,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server).SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Admin API configured")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to get unstopped service report")
	}
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("Weekline stopped")
}
