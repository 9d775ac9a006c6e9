// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package logging provides centralized zerolog-based structured logging for Weekline.
//
// The package provides:
//   - A global zerolog logger configured once from main via Init
//   - JSON output for production, console output for development
//   - Correlation IDs carried on context.Context (Ctx)
//   - An slog.Handler adapter for the suture supervisor event hook
//   - A watermill.LoggerAdapter for the widget broadcast pub/sub
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("period", "goals_50_2024").Msg("Cache refreshed")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Live fetch failed, serving stale cache")
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never written.
package logging
