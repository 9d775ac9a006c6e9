// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package perf keeps widget updates inside their time and memory budget.

Monitor and MonitorSync time a single operation against a deadline and
measure its heap delta. BatchMonitor runs many operations on a bounded
errgroup, each with its own panic boundary.

Apply turns a sample into corrective actions through three hooks:

	IntervalBackoff  over the time budget: lengthen the periodic interval
	CacheTrimmer     over the memory budget: trim the cache, hint a GC
	FallbackHook     failed: serve the surface from cache

OptimalInterval picks 30, 45 or 60 minutes from the current memory state.
*/
package perf
