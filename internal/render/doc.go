// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package render holds the widget surfaces and the view model they draw.
//
// A Surface owns every placed instance of one layout (2x2, 2x3 or 3x2).
// Registry.RefreshAll refreshes all of them as a single monitored batch.
// BuildView turns a cache read, the widget state and the latest load outcome
// into goals, an error, an empty prompt or a loading placeholder.
package render
