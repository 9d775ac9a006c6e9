// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cache key prefixes for period entries.
const (
	PeriodKeyPrefix    = "goals_"
	TimestampKeyPrefix = "timestamp_"
)

// Period identifies one week's goal set.
type Period struct {
	WeekOfYear int `json:"week_of_year"`
	Year       int `json:"year"`
}

// PeriodOf returns the ISO week containing t.
func PeriodOf(t time.Time) Period {
	year, week := t.ISOWeek()
	return Period{WeekOfYear: week, Year: year}
}

// PeriodForOffset returns the period offset whole weeks away from the week
// containing now. Negative offsets go back in time.
func PeriodForOffset(now time.Time, offset int) Period {
	return PeriodOf(now.AddDate(0, 0, 7*offset))
}

// CurrentAndPrevious returns the current week followed by the n previous
// weeks, newest first.
func CurrentAndPrevious(now time.Time, n int) []Period {
	if n < 0 {
		n = 0
	}
	periods := make([]Period, 0, n+1)
	for offset := 0; offset >= -n; offset-- {
		periods = append(periods, PeriodForOffset(now, offset))
	}
	return periods
}

// Key returns the cache key for the period, e.g. "goals_50_2024".
func (p Period) Key() string {
	return fmt.Sprintf("%s%d_%d", PeriodKeyPrefix, p.WeekOfYear, p.Year)
}

// TimestampKey returns the sibling freshness key, e.g. "timestamp_goals_50_2024".
func (p Period) TimestampKey() string {
	return TimestampKeyPrefix + p.Key()
}

// String implements fmt.Stringer.
func (p Period) String() string {
	return fmt.Sprintf("%d/%d", p.WeekOfYear, p.Year)
}

// Valid reports whether the week number is in the ISO range.
func (p Period) Valid() bool {
	return p.WeekOfYear >= 1 && p.WeekOfYear <= 53 && p.Year > 0
}

// ParsePeriodKey parses a key produced by Period.Key.
func ParsePeriodKey(key string) (Period, error) {
	rest, ok := strings.CutPrefix(key, PeriodKeyPrefix)
	if !ok {
		return Period{}, fmt.Errorf("period key %q: missing %q prefix", key, PeriodKeyPrefix)
	}
	weekStr, yearStr, ok := strings.Cut(rest, "_")
	if !ok {
		return Period{}, fmt.Errorf("period key %q: malformed", key)
	}
	week, err := strconv.Atoi(weekStr)
	if err != nil {
		return Period{}, fmt.Errorf("period key %q: week: %w", key, err)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Period{}, fmt.Errorf("period key %q: year: %w", key, err)
	}
	p := Period{WeekOfYear: week, Year: year}
	if !p.Valid() {
		return Period{}, fmt.Errorf("period key %q: out of range", key)
	}
	return p, nil
}
