// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package models

import "time"

// Week offset bounds for widget navigation. Offsets further in the past are
// not representable.
const (
	MinWeekOffset = -4
	MaxWeekOffset = 0
)

// ClampWeekOffset bounds offset to [MinWeekOffset, MaxWeekOffset].
func ClampWeekOffset(offset int) int {
	if offset < MinWeekOffset {
		return MinWeekOffset
	}
	if offset > MaxWeekOffset {
		return MaxWeekOffset
	}
	return offset
}

// WidgetRuntimeState is the persisted state of one widget instance.
type WidgetRuntimeState struct {
	WidgetID         int          `json:"widget_id"`
	WeekOffset       int          `json:"week_offset"`
	LastError        *WidgetError `json:"last_error,omitempty"`
	IsConfigured     bool         `json:"is_configured"`
	LastSelectedWeek int          `json:"last_selected_week,omitempty"`
	LastSelectedYear int          `json:"last_selected_year,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewWidgetRuntimeState returns the default state for a new instance.
func NewWidgetRuntimeState(widgetID int) WidgetRuntimeState {
	return WidgetRuntimeState{WidgetID: widgetID}
}

// Period returns the period the widget currently displays.
func (s *WidgetRuntimeState) Period(now time.Time) Period {
	return PeriodForOffset(now, ClampWeekOffset(s.WeekOffset))
}

// PerformanceSample measures one monitored operation.
type PerformanceSample struct {
	OperationName string  `json:"operation_name"`
	DurationMs    int64   `json:"duration_ms"`
	MemoryDeltaMB float64 `json:"memory_delta_mb"`
	WithinBudget  bool    `json:"within_budget"`
	Error         string  `json:"error,omitempty"`
}

// Failed reports whether the operation errored or timed out.
func (s PerformanceSample) Failed() bool {
	return s.Error != ""
}

// MigrationStatus is the process-wide schema version state.
type MigrationStatus struct {
	CurrentVersion int       `json:"current_version"`
	TargetVersion  int       `json:"target_version"`
	IsCompleted    bool      `json:"is_completed"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}
