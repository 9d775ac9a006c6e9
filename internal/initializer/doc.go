// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package initializer brings the widget system up at startup and provides
// the health report and maintenance operations behind the admin API.
package initializer
