// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package fanout propagates goal data changes to every widget surface.

A Notify call runs three steps, each in its own failure boundary:

 1. direct_refresh redraws every registered surface at once.
 2. schedule enqueues an immediate refresh job, or a forced one when the
    week rolled over.
 3. broadcast publishes an Envelope on the widget.data_changed topic.

The Listener consumes that topic through a watermill Router and redraws
surfaces that were not reachable directly. A WeekChanged event also moves
every widget back to the current week.

Usage:

	bus := fanout.NewBus(cfg.Fanout)
	notifier := fanout.NewNotifier(cfg.Fanout, registry, sched, bus)
	listener := fanout.NewListener(cfg.Fanout, bus, registry, states)

	report := notifier.Notify(ctx, fanout.GoalCreated{GoalID: "g-1"})
	if !report.OK() {
		// at least one path failed; the others still ran
	}
*/
package fanout
