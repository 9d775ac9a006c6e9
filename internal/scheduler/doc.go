// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package scheduler runs widget refresh jobs.

LocalHost is an in-process background job host. Jobs move through

	idle → scheduled → running → succeeded | failed

with exponential (or linear) back-off between attempts. A job that exhausts
its attempts, or returns an error wrapped with Permanent, fails terminally
and is reported through OnJobFailed. Periodic jobs then continue with the
next period.

Scheduler owns three kinds of refresh job on the host:

  - weekly_goal_widget_update: periodic, gated on network and battery, at
    the optimizer's interval times the back-off multiplier
  - widget_immediate_update: one-shot after a data change, rate limited
  - widget_force_update: one-shot at week rollover or on demand

RefreshJob is the shared body.
*/
package scheduler
