// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package render

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// CacheReader is the synchronous cache read a surface draws from.
type CacheReader interface {
	ReadSync(period models.Period) []models.GoalSnapshot
}

// StateReader resolves a widget's runtime state and the shared preferences.
type StateReader interface {
	Get(widgetID int) (models.WidgetRuntimeState, error)
	LoadPreferences() (widgetstate.Preferences, error)
}

// LogSurface renders widget views to the log and keeps the last view of each
// instance. It never touches the network.
type LogSurface struct {
	kind   Kind
	cache  CacheReader
	states StateReader
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.RWMutex
	ids      map[int]struct{}
	views    map[int]View
	outcomes map[int]models.RefreshOutcome
}

// NewLogSurface creates a surface for kind showing the given instances.
func NewLogSurface(kind Kind, cache CacheReader, states StateReader, widgetIDs ...int) *LogSurface {
	s := &LogSurface{
		kind:     kind,
		cache:    cache,
		states:   states,
		now:      time.Now,
		logger:   logging.WithComponent("surface").With().Str("kind", string(kind)).Logger(),
		ids:      make(map[int]struct{}),
		views:    make(map[int]View),
		outcomes: make(map[int]models.RefreshOutcome),
	}
	for _, id := range widgetIDs {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *LogSurface) Kind() Kind { return s.kind }

// WidgetIDs returns the placed instances in ascending order.
func (s *LogSurface) WidgetIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Place adds a widget instance.
func (s *LogSurface) Place(widgetID int) {
	s.mu.Lock()
	s.ids[widgetID] = struct{}{}
	s.mu.Unlock()
}

// Remove drops a widget instance.
func (s *LogSurface) Remove(widgetID int) {
	s.mu.Lock()
	delete(s.ids, widgetID)
	delete(s.views, widgetID)
	delete(s.outcomes, widgetID)
	s.mu.Unlock()
}

// SetOutcome records a load result for a widget. Only the next refresh draws
// from it; later refreshes re-read the cache.
func (s *LogSurface) SetOutcome(widgetID int, outcome models.RefreshOutcome) {
	s.mu.Lock()
	s.outcomes[widgetID] = outcome
	s.mu.Unlock()
}

// Refresh redraws widgetID from the cache and any pending outcome.
func (s *LogSurface) Refresh(ctx context.Context, widgetID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view, err := s.draw(widgetID, true)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Debug().
		Str("kind", string(s.kind)).
		Int("widget_id", widgetID).
		Str("state", string(view.State)).
		Int("goals", len(view.Goals)).
		Bool("stale", view.Stale).
		Msg("Widget drawn")
	return nil
}

// RenderFromCache redraws widgetID from the cache only.
func (s *LogSurface) RenderFromCache(widgetID int) error {
	_, err := s.draw(widgetID, false)
	return err
}

func (s *LogSurface) draw(widgetID int, useOutcome bool) (View, error) {
	state, err := s.states.Get(widgetID)
	if err != nil {
		return View{}, err
	}
	prefs, err := s.states.LoadPreferences()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Drawing with default preferences")
	}

	now := s.now()
	cached := s.cache.ReadSync(state.Period(now))

	var outcome *models.RefreshOutcome
	if useOutcome {
		s.mu.Lock()
		if o, ok := s.outcomes[widgetID]; ok {
			outcome = &o
			delete(s.outcomes, widgetID)
		}
		s.mu.Unlock()
	}
	// The cache is written after the outcome was recorded, so it wins.
	if outcome != nil && outcome.IsSuccess() && len(cached) > 0 {
		outcome.Items = cached
	}

	view := BuildView(cached, state, outcome, prefs, now)
	s.mu.Lock()
	s.views[widgetID] = view
	s.mu.Unlock()
	return view, nil
}

// View returns the last drawn view of widgetID.
func (s *LogSurface) View(widgetID int) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[widgetID]
	return v, ok
}
