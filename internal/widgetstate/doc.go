// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package widgetstate stores per-instance widget runtime state (week offset,
// last error) under widget_state_{id} and the shared Preferences under
// widget_prefs. Week offsets are always clamped to [-4, 0].
package widgetstate
