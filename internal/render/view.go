// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package render

import (
	"fmt"
	"time"

	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// ViewState is what a widget draws.
type ViewState string

const (
	ViewGoals   ViewState = "goals"
	ViewError   ViewState = "error"
	ViewEmpty   ViewState = "empty"
	ViewLoading ViewState = "loading"
)

const (
	EmptyMessage   = "No goals for this week"
	LoadingMessage = "Loading goals..."
)

// GoalView is one goal row.
type GoalView struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	ImageRef  string            `json:"image_ref,omitempty"`
	Status    models.GoalStatus `json:"status"`
	Completed bool              `json:"completed"`
}

// View is the render model of one widget instance.
type View struct {
	WidgetID       int                    `json:"widget_id"`
	Period         models.Period          `json:"period"`
	Title          string                 `json:"title"`
	State          ViewState              `json:"state"`
	Goals          []GoalView             `json:"goals,omitempty"`
	Stale          bool                   `json:"stale,omitempty"`
	Message        string                 `json:"message,omitempty"`
	ErrorKind      models.ErrorKind       `json:"error_kind,omitempty"`
	Retry          bool                   `json:"retry,omitempty"`
	ShowNavigation bool                   `json:"show_navigation"`
	CanGoBack      bool                   `json:"can_go_back"`
	CanGoForward   bool                   `json:"can_go_forward"`
	Size           widgetstate.WidgetSize `json:"size"`
	Theme          widgetstate.ThemeMode  `json:"theme"`
}

// BuildView derives what a widget should draw. cached is the synchronous
// cache read for the widget's period; outcome is the latest load result, or
// nil if none has completed. It always yields a drawable view.
func BuildView(cached []models.GoalSnapshot, state models.WidgetRuntimeState, outcome *models.RefreshOutcome, prefs widgetstate.Preferences, now time.Time) View {
	offset := models.ClampWeekOffset(state.WeekOffset)
	period := models.PeriodForOffset(now, offset)

	v := View{
		WidgetID:       state.WidgetID,
		Period:         period,
		Title:          title(period, offset),
		ShowNavigation: prefs.ShowWeekNavigation,
		CanGoBack:      offset > models.MinWeekOffset,
		CanGoForward:   offset < models.MaxWeekOffset,
		Size:           prefs.WidgetSize,
		Theme:          prefs.ThemeMode,
	}

	items := cached
	stale := false
	var werr *models.WidgetError

	if outcome != nil {
		switch outcome.Kind {
		case models.OutcomeSuccess:
			items = outcome.Items
			stale = outcome.IsStale
		case models.OutcomeError:
			werr = outcome.Err
			stale = len(items) > 0
		case models.OutcomeLoading:
			if len(items) == 0 {
				v.State = ViewLoading
				v.Message = LoadingMessage
				if outcome.Message != "" {
					v.Message = outcome.Message
				}
				return v
			}
		}
	} else if len(items) == 0 && state.LastError != nil {
		werr = state.LastError
	}

	goals := goalViews(items, prefs.ShowCompletedGoals)

	switch {
	case len(goals) > 0:
		v.State = ViewGoals
		v.Goals = goals
		v.Stale = stale
		if werr != nil {
			v.ErrorKind = werr.Kind
			v.Message = werr.Error()
			v.Retry = werr.Retryable()
		}
	case werr != nil:
		v.State = ViewError
		v.ErrorKind = werr.Kind
		v.Message = werr.Error()
		v.Retry = werr.Retryable()
	default:
		v.State = ViewEmpty
		v.Message = EmptyMessage
	}
	return v
}

func goalViews(items []models.GoalSnapshot, showCompleted bool) []GoalView {
	out := make([]GoalView, 0, len(items))
	for _, g := range items {
		completed := g.Status == models.GoalStatusCompleted
		if completed && !showCompleted {
			continue
		}
		gv := GoalView{ID: g.ID, Text: g.Text, Status: g.Status, Completed: completed}
		switch {
		case g.CustomImageRef != nil:
			gv.ImageRef = *g.CustomImageRef
		case g.ImageRef != nil:
			gv.ImageRef = *g.ImageRef
		}
		out = append(out, gv)
	}
	return out
}

func title(p models.Period, offset int) string {
	if offset == 0 {
		return fmt.Sprintf("This week (W%d %d)", p.WeekOfYear, p.Year)
	}
	return fmt.Sprintf("Week %d, %d", p.WeekOfYear, p.Year)
}
