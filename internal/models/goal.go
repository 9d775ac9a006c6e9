// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package models

import (
	"fmt"
	"strings"
	"time"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

// Goal statuses.
const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusCompleted GoalStatus = "COMPLETED"
	GoalStatusFailed    GoalStatus = "FAILED"
	GoalStatusArchived  GoalStatus = "ARCHIVED"
)

// ParseGoalStatus parses a status name, case-insensitively.
func ParseGoalStatus(s string) (GoalStatus, error) {
	switch st := GoalStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusFailed, GoalStatusArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown goal status %q", s)
	}
}

// Done reports whether the goal no longer needs attention this week.
func (s GoalStatus) Done() bool {
	return s == GoalStatusCompleted || s == GoalStatusArchived
}

// DomainGoal is a goal record as returned by the goal repository.
type DomainGoal struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	ImageRef       *string    `json:"image_ref,omitempty"`
	CustomImageRef *string    `json:"custom_image_ref,omitempty"`
	Status         GoalStatus `json:"status"`
	WeekOfYear     int        `json:"week_of_year"`
	YearCreated    int        `json:"year_created"`
	Position       int        `json:"position"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// InPeriod reports whether the goal belongs to p.
func (g *DomainGoal) InPeriod(p Period) bool {
	return g.WeekOfYear == p.WeekOfYear && g.YearCreated == p.Year
}

// GoalSnapshot is the immutable projection of a goal that widgets draw.
// Snapshots are replaced, never edited.
type GoalSnapshot struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	ImageRef       *string    `json:"image_ref,omitempty"`
	CustomImageRef *string    `json:"custom_image_ref,omitempty"`
	Status         GoalStatus `json:"status"`
	WeekOfYear     int        `json:"week_of_year"`
	YearCreated    int        `json:"year_created"`
	Position       int        `json:"position"`
}

// SnapshotOf projects a repository goal into a snapshot. Pointer fields are
// copied so the snapshot shares no memory with the source record.
func SnapshotOf(g *DomainGoal) GoalSnapshot {
	return GoalSnapshot{
		ID:             g.ID,
		Text:           g.Text,
		ImageRef:       cloneString(g.ImageRef),
		CustomImageRef: cloneString(g.CustomImageRef),
		Status:         g.Status,
		WeekOfYear:     g.WeekOfYear,
		YearCreated:    g.YearCreated,
		Position:       g.Position,
	}
}

// Period returns the period the snapshot belongs to.
func (s GoalSnapshot) Period() Period {
	return Period{WeekOfYear: s.WeekOfYear, Year: s.YearCreated}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// CacheEntry is the cached goal list for one period.
type CacheEntry struct {
	Period          Period         `json:"period"`
	Items           []GoalSnapshot `json:"items"`
	CachedAtEpochMs int64          `json:"cached_at_epoch_ms"`
}

// CachedAt returns the entry timestamp as a time.Time.
func (e CacheEntry) CachedAt() time.Time {
	return time.UnixMilli(e.CachedAtEpochMs)
}
