// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/perf"
)

// ErrUnknownWidget is returned for a widget id no surface shows.
var ErrUnknownWidget = errors.New("unknown widget")

// Kind is a widget layout.
type Kind string

const (
	Size2x2 Kind = "2x2"
	Size2x3 Kind = "2x3"
	Size3x2 Kind = "3x2"
)

// AllKinds lists every layout in refresh order.
var AllKinds = []Kind{Size2x2, Size2x3, Size3x2}

// Surface draws every placed instance of one widget layout.
type Surface interface {
	Kind() Kind
	WidgetIDs() []int
	Refresh(ctx context.Context, widgetID int) error
}

// CacheRenderer is implemented by surfaces that can redraw an instance from
// the cache alone.
type CacheRenderer interface {
	RenderFromCache(widgetID int) error
}

// Registry holds one surface per layout.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[Kind]Surface
	perf     *perf.Optimizer
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. Refreshes run under optimizer, or
// under a default optimizer when it is nil.
func NewRegistry(optimizer *perf.Optimizer) *Registry {
	if optimizer == nil {
		optimizer = perf.New(config.DefaultConfig().Perf)
	}
	return &Registry{
		surfaces: make(map[Kind]Surface),
		perf:     optimizer,
		logger:   logging.WithComponent("render"),
	}
}

// Register installs s, replacing any surface of the same kind.
func (r *Registry) Register(s Surface) {
	r.mu.Lock()
	r.surfaces[s.Kind()] = s
	r.mu.Unlock()
}

// Unregister removes the surface for kind.
func (r *Registry) Unregister(kind Kind) {
	r.mu.Lock()
	delete(r.surfaces, kind)
	r.mu.Unlock()
}

// Surface returns the surface for kind.
func (r *Registry) Surface(kind Kind) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[kind]
	return s, ok
}

// Find returns the surface showing widgetID.
func (r *Registry) Find(widgetID int) (Surface, bool) {
	for _, kind := range AllKinds {
		s, ok := r.Surface(kind)
		if !ok {
			continue
		}
		for _, id := range s.WidgetIDs() {
			if id == widgetID {
				return s, true
			}
		}
	}
	return nil, false
}

// WidgetIDs lists every placed widget instance across all surfaces.
func (r *Registry) WidgetIDs() []int {
	var ids []int
	for _, kind := range AllKinds {
		if s, ok := r.Surface(kind); ok {
			ids = append(ids, s.WidgetIDs()...)
		}
	}
	return ids
}

// OperationName names the refresh of one widget instance.
func OperationName(kind Kind, widgetID int) string {
	return fmt.Sprintf("refresh_%s_%d", kind, widgetID)
}

// ParseOperationName reverses OperationName.
func ParseOperationName(name string) (Kind, int, bool) {
	rest, ok := strings.CutPrefix(name, "refresh_")
	if !ok {
		return "", 0, false
	}
	kind, idStr, ok := strings.Cut(rest, "_")
	if !ok {
		return "", 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return "", 0, false
	}
	return Kind(kind), id, true
}

// RefreshAll refreshes every instance of every surface as one monitored
// batch. A failing instance never prevents the others from refreshing.
func (r *Registry) RefreshAll(ctx context.Context) []models.PerformanceSample {
	ops := make(map[string]perf.Op)
	for _, kind := range AllKinds {
		s, ok := r.Surface(kind)
		if !ok {
			continue
		}
		for _, id := range s.WidgetIDs() {
			ops[OperationName(kind, id)] = func(ctx context.Context) error {
				return s.Refresh(ctx, id)
			}
		}
	}
	if len(ops) == 0 {
		return nil
	}

	samples := r.perf.BatchMonitor(ctx, ops)

	failed := 0
	for _, s := range samples {
		if s.Failed() {
			failed++
		}
	}
	logging.Ctx(ctx).Debug().
		Int("widgets", len(samples)).
		Int("failed", failed).
		Msg("Refreshed widget surfaces")
	return samples
}

// FallbackToCache redraws the widget behind a failed operation from cache.
func (r *Registry) FallbackToCache(operation string) {
	kind, id, ok := ParseOperationName(operation)
	if !ok {
		return
	}
	s, ok := r.Surface(kind)
	if !ok {
		return
	}
	cr, ok := s.(CacheRenderer)
	if !ok {
		return
	}
	if err := cr.RenderFromCache(id); err != nil {
		r.logger.Warn().Err(err).Str("operation", operation).Msg("Cache fallback render failed")
	}
}

// Viewer is implemented by surfaces that keep the last drawn view.
type Viewer interface {
	View(widgetID int) (View, bool)
}

// OutcomeSetter is implemented by surfaces that draw from a load outcome.
type OutcomeSetter interface {
	SetOutcome(widgetID int, outcome models.RefreshOutcome)
}

// RefreshWidget records outcome for widgetID on its surface and redraws it.
func (r *Registry) RefreshWidget(ctx context.Context, widgetID int, outcome models.RefreshOutcome) (View, error) {
	s, ok := r.Find(widgetID)
	if !ok {
		return View{}, fmt.Errorf("%w: %d", ErrUnknownWidget, widgetID)
	}
	if setter, ok := s.(OutcomeSetter); ok {
		setter.SetOutcome(widgetID, outcome)
	}
	if err := s.Refresh(ctx, widgetID); err != nil {
		return View{}, err
	}
	view, _ := r.View(widgetID)
	return view, nil
}

// View returns the last drawn view of widgetID.
func (r *Registry) View(widgetID int) (View, bool) {
	s, ok := r.Find(widgetID)
	if !ok {
		return View{}, false
	}
	v, ok := s.(Viewer)
	if !ok {
		return View{}, false
	}
	return v.View(widgetID)
}
