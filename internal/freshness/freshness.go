// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package freshness decides whether cached widget data may be served as-is
// and whether a live refresh should be attempted. It is pure: callers supply
// the clock, the cache timestamp and the connectivity state.
package freshness

import "time"

// DefaultMaxAge is the freshness threshold for widget caches.
const DefaultMaxAge = 30 * time.Minute

// IsUsable reports whether an entry cached at cachedAt is still fresh at now.
// A zero cachedAt (no entry) is never usable.
func IsUsable(cachedAt, now time.Time, maxAge time.Duration) bool {
	if cachedAt.IsZero() {
		return false
	}
	return now.Sub(cachedAt) < maxAge
}

// Age returns how old an entry is at now, or -1 when there is no entry.
func Age(cachedAt, now time.Time) time.Duration {
	if cachedAt.IsZero() {
		return -1
	}
	return now.Sub(cachedAt)
}

// Decision is the next step of a load.
type Decision int

const (
	// ServeCache returns the fresh cached entry without touching the network.
	ServeCache Decision = iota
	// FetchLive attempts a bounded live fetch.
	FetchLive
	// SkipNetworkDown skips the fetch and falls back to whatever is cached.
	SkipNetworkDown
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case ServeCache:
		return "serve_cache"
	case FetchLive:
		return "fetch_live"
	case SkipNetworkDown:
		return "skip_network_down"
	default:
		return "unknown"
	}
}

// Decide combines the force flag, cache freshness and connectivity.
// freshHit means a usable, non-empty entry exists.
func Decide(force, freshHit, networkAvailable bool) Decision {
	if !force && freshHit {
		return ServeCache
	}
	if !networkAvailable {
		return SkipNetworkDown
	}
	return FetchLive
}

// ShouldAttemptLive reports whether a live fetch should be attempted.
func ShouldAttemptLive(force, freshHit, networkAvailable bool) bool {
	return Decide(force, freshHit, networkAvailable) == FetchLive
}
