// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package freshness

import (
	"testing"
	"time"
)

func TestIsUsable(t *testing.T) {
	now := time.Date(2024, 12, 11, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cachedAt time.Time
		want     bool
	}{
		{"ten minutes old", now.Add(-10 * time.Minute), true},
		{"just under threshold", now.Add(-DefaultMaxAge + time.Millisecond), true},
		{"exactly at threshold", now.Add(-DefaultMaxAge), false},
		{"forty minutes old", now.Add(-40 * time.Minute), false},
		{"no entry", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUsable(tt.cachedAt, now, DefaultMaxAge); got != tt.want {
				t.Errorf("IsUsable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAge(t *testing.T) {
	now := time.Now()
	if Age(time.Time{}, now) != -1 {
		t.Error("expected -1 for missing entry")
	}
	if Age(now.Add(-time.Minute), now) != time.Minute {
		t.Error("expected one minute age")
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		force    bool
		freshHit bool
		network  bool
		want     Decision
	}{
		{"fresh hit serves cache", false, true, true, ServeCache},
		{"fresh hit serves cache offline", false, true, false, ServeCache},
		{"force ignores fresh cache", true, true, true, FetchLive},
		{"stale fetches live", false, false, true, FetchLive},
		{"stale offline skips", false, false, false, SkipNetworkDown},
		{"force offline skips", true, true, false, SkipNetworkDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.force, tt.freshHit, tt.network)
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
			if ShouldAttemptLive(tt.force, tt.freshHit, tt.network) != (tt.want == FetchLive) {
				t.Errorf("ShouldAttemptLive disagrees with Decide for %s", tt.name)
			}
		})
	}
}
