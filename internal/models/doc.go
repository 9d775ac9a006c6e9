// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package models defines the data structures shared by the Weekline widget
synchronization pipeline.

Key Components:

  - Period: a (week of year, year) pair identifying one week's goal set
  - GoalSnapshot: immutable projection of a repository goal, as drawn by widgets
  - CacheEntry: the whole-list cache record for one period
  - RefreshOutcome: Success(items, stale) | Error(kind) | Loading result of a load
  - ErrorKind / WidgetError: the closed error taxonomy shown on widget surfaces
  - WidgetRuntimeState: per widget instance state (week offset, last error)
  - PerformanceSample: measurement of one monitored render/update operation
  - MigrationStatus: persisted schema version state
  - APIResponse: envelope used by the admin HTTP API

Week numbering follows ISO-8601 (time.Time.ISOWeek).
*/
package models
