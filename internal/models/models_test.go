// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package models

import (
	"testing"
	"time"
)

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want Period
	}{
		{"mid december", time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC), Period{50, 2024}},
		{"iso year rollover", time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC), Period{1, 2025}},
		{"first monday", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Period{2, 2026}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeriodOf(tt.at); got != tt.want {
				t.Errorf("PeriodOf(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestCurrentAndPrevious(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	periods := CurrentAndPrevious(now, 4)

	want := []Period{{1, 2025}, {52, 2024}, {51, 2024}, {50, 2024}, {49, 2024}}
	if len(periods) != len(want) {
		t.Fatalf("expected %d periods, got %d", len(want), len(periods))
	}
	for i := range want {
		if periods[i] != want[i] {
			t.Errorf("periods[%d] = %v, want %v", i, periods[i], want[i])
		}
	}

	if got := CurrentAndPrevious(now, -3); len(got) != 1 {
		t.Errorf("negative count should yield only the current week, got %d", len(got))
	}
}

func TestPeriodKeys(t *testing.T) {
	t.Parallel()

	p := Period{WeekOfYear: 50, Year: 2024}
	if p.Key() != "goals_50_2024" {
		t.Errorf("unexpected key %q", p.Key())
	}
	if p.TimestampKey() != "timestamp_goals_50_2024" {
		t.Errorf("unexpected timestamp key %q", p.TimestampKey())
	}

	parsed, err := ParsePeriodKey(p.Key())
	if err != nil {
		t.Fatalf("ParsePeriodKey: %v", err)
	}
	if parsed != p {
		t.Errorf("parsed %v, want %v", parsed, p)
	}
}

func TestParsePeriodKeyErrors(t *testing.T) {
	for _, key := range []string{"", "goals_", "goals_x_2024", "goals_5", "week_5_2024", "goals_60_2024", "goals_5_abc"} {
		t.Run(key, func(t *testing.T) {
			if _, err := ParsePeriodKey(key); err == nil {
				t.Errorf("expected error for %q", key)
			}
		})
	}
}

func TestClampWeekOffset(t *testing.T) {
	tests := []struct{ in, want int }{
		{-10, -4}, {-4, -4}, {-2, -2}, {0, 0}, {3, 0},
	}
	for _, tt := range tests {
		if got := ClampWeekOffset(tt.in); got != tt.want {
			t.Errorf("ClampWeekOffset(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
		message   string
	}{
		{ErrorNetworkUnavailable, true, "No internet connection"},
		{ErrorAuthentication, false, "Please sign in to view goals"},
		{ErrorDataLoadFailure, true, "Failed to load goals"},
		{ErrorTimeout, true, "Loading timed out"},
		{ErrorCustom, true, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.kind.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", tt.kind.Retryable(), tt.retryable)
			}
			if tt.kind.Message() != tt.message {
				t.Errorf("Message() = %q, want %q", tt.kind.Message(), tt.message)
			}
		})
	}

	if CustomError("quota exceeded").Error() != "quota exceeded" {
		t.Error("custom error should keep its message")
	}
}

func TestRefreshOutcomeConstructors(t *testing.T) {
	t.Parallel()

	ok := Success(nil, true)
	if !ok.IsSuccess() || !ok.IsStale || ok.Items == nil {
		t.Errorf("unexpected success outcome: %+v", ok)
	}

	failed := FailureKind(ErrorTimeout)
	if !failed.IsError() || failed.ErrorKind() != ErrorTimeout {
		t.Errorf("unexpected failure outcome: %+v", failed)
	}

	if Loading("Loading goals...").Kind != OutcomeLoading {
		t.Error("expected loading outcome")
	}
	if ok.ErrorKind() != "" {
		t.Error("success outcome should have no error kind")
	}
}

func TestParseGoalStatus(t *testing.T) {
	st, err := ParseGoalStatus(" completed ")
	if err != nil || st != GoalStatusCompleted {
		t.Errorf("got %q, %v", st, err)
	}
	if _, err := ParseGoalStatus("PAUSED"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestSnapshotOfCopiesPointers(t *testing.T) {
	t.Parallel()

	img := "img://run.png"
	g := DomainGoal{ID: "g1", Text: "Run 5k", ImageRef: &img, Status: GoalStatusActive, WeekOfYear: 50, YearCreated: 2024}
	snap := SnapshotOf(&g)

	img = "img://changed.png"
	if *snap.ImageRef != "img://run.png" {
		t.Errorf("snapshot shares memory with source: %q", *snap.ImageRef)
	}
	if snap.Period() != (Period{50, 2024}) {
		t.Errorf("unexpected period %v", snap.Period())
	}
	if !g.InPeriod(Period{50, 2024}) {
		t.Error("expected goal to be in its period")
	}
}
