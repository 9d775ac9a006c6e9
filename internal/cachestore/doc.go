// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package cachestore persists weekly goal snapshots in BadgerDB.

Each period occupies two keys:

	goals_{week}_{year}            JSON array of GoalSnapshot
	timestamp_goals_{week}_{year}  8-byte big-endian epoch millis

Both keys are written in one transaction. Readers see either the previous
pair or the new pair, never a mix. Timestamps never move backwards for a
key, even if the wall clock does.

The read path is synchronous and infallible: a missing or corrupt entry reads
as an empty list. Write failures are logged and counted but never returned
from WriteSync, because the cache is an optimization over the goal
repository.

The same *badger.DB is shared with the widget state store and the migration
guard; see OpenDB and New.

Compactor runs in the background, trimming periods that left the refresh
window and reclaiming value log space.
*/
package cachestore
