// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package migration moves widget data from the legacy JSON files into the
// BadgerDB layout. Run orders the phases: a best-effort tar.gz backup, the
// migration itself, and removal of the legacy files only after the target
// schema version has been recorded.
package migration
