// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/weekline/internal/fanout"
	"github.com/tomtom215/weekline/internal/initializer"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/render"
	"github.com/tomtom215/weekline/internal/scheduler"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// Notifier fans data changes out to the widgets.
type Notifier interface {
	Notify(ctx context.Context, ev fanout.Event) fanout.Report
	ReportOutcome(ctx context.Context, widgetID int, outcome models.RefreshOutcome) bool
}

// Maintenance serves the whole-system operations.
type Maintenance interface {
	Health() initializer.Health
	ForceRefreshAll(ctx context.Context) (scheduler.JobStatus, error)
	ResetWidgetData(ctx context.Context) error
}

// WidgetStates reads and navigates per-instance state.
type WidgetStates interface {
	Get(widgetID int) (models.WidgetRuntimeState, error)
	Navigate(widgetID int, dir widgetstate.Direction) (models.WidgetRuntimeState, error)
}

// Widgets resolves placed widget instances and their views.
type Widgets interface {
	Find(widgetID int) (render.Surface, bool)
	View(widgetID int) (render.View, bool)
	RefreshWidget(ctx context.Context, widgetID int, outcome models.RefreshOutcome) (render.View, error)
}

// WidgetLoader loads the period a widget is showing.
type WidgetLoader interface {
	LoadForWidget(ctx context.Context, widgetID int, force bool) (models.Period, models.RefreshOutcome)
}

// DeviceControl flips the simulated device signals.
type DeviceControl interface {
	IsNetworkAvailable() bool
	IsSignedIn() bool
	IsBatteryOK() bool
	SetNetworkAvailable(v bool)
	SetSignedIn(v bool)
	SetBatteryOK(v bool)
	ChangedAt() time.Time
}

// Handler holds the collaborators of the admin API.
type Handler struct {
	notifier    Notifier
	maintenance Maintenance
	states      WidgetStates
	widgets     Widgets
	loader      WidgetLoader
	device      DeviceControl
}

// HandlerDeps are the collaborators passed to NewHandler. Device may be nil,
// which disables the device route.
type HandlerDeps struct {
	Notifier    Notifier
	Maintenance Maintenance
	States      WidgetStates
	Widgets     Widgets
	Loader      WidgetLoader
	Device      DeviceControl
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		notifier:    deps.Notifier,
		maintenance: deps.Maintenance,
		states:      deps.States,
		widgets:     deps.Widgets,
		loader:      deps.Loader,
		device:      deps.Device,
	}
}

// EventRequest is the body of POST /api/v1/events.
type EventRequest struct {
	Type      string `json:"type" validate:"required,oneof=goal_created goal_updated goal_deleted goal_status_changed week_changed"`
	GoalID    string `json:"goal_id" validate:"omitempty,max=128"`
	NewStatus string `json:"new_status" validate:"omitempty,goal_status"`
}

// WidgetResponse is a widget's persisted state with its current view.
type WidgetResponse struct {
	State   models.WidgetRuntimeState `json:"state"`
	View    render.View               `json:"view"`
	Outcome *models.RefreshOutcome    `json:"outcome,omitempty"`
}

// DeviceRequest is the body of PUT /api/v1/device. Absent fields are left
// unchanged.
type DeviceRequest struct {
	NetworkAvailable *bool `json:"network_available"`
	SignedIn         *bool `json:"signed_in"`
	BatteryOK        *bool `json:"battery_ok"`
}

// DeviceResponse reports the device signals.
type DeviceResponse struct {
	NetworkAvailable bool      `json:"network_available"`
	SignedIn         bool      `json:"signed_in"`
	BatteryOK        bool      `json:"battery_ok"`
	ChangedAt        time.Time `json:"changed_at"`
}

// PostEvent handles POST /api/v1/events.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a JSON event", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	ev, err := fanout.ParseEvent(fanout.EventType(req.Type), req.GoalID, models.GoalStatus(req.NewStatus))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	report := h.notifier.Notify(r.Context(), ev)
	if failed := report.Failed(); len(failed) > 0 {
		logging.Ctx(r.Context()).Warn().
			Str("event", string(report.Event)).
			Int("failed_steps", len(failed)).
			Msg("Event delivered with failed steps")
	}
	respondSuccess(w, r, http.StatusAccepted, report)
}

func widgetIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		return 0, ErrInvalidWidgetID
	}
	return id, nil
}

// placedWidget resolves the {id} parameter to a placed widget instance and
// writes the error response when it does not resolve.
func (h *Handler) placedWidget(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := widgetIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_WIDGET_ID", "Widget id must be a non-negative integer", nil)
		return 0, false
	}
	if _, ok := h.widgets.Find(id); !ok {
		respondError(w, http.StatusNotFound, "WIDGET_NOT_FOUND", "No surface shows widget "+strconv.Itoa(id), nil)
		return 0, false
	}
	return id, true
}

// GetWidget handles GET /api/v1/widgets/{id}. A widget that has never been
// drawn is loaded and drawn first.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.placedWidget(w, r)
	if !ok {
		return
	}
	state, err := h.states.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_ERROR", "Failed to read widget state", err)
		return
	}

	resp := WidgetResponse{State: state}
	if view, ok := h.widgets.View(id); ok {
		resp.View = view
		respondSuccess(w, r, http.StatusOK, resp)
		return
	}

	view, outcome, err := h.reload(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RENDER_ERROR", "Failed to draw widget", err)
		return
	}
	resp.View, resp.Outcome = view, &outcome
	respondSuccess(w, r, http.StatusOK, resp)
}

// NavigateWidget handles POST /api/v1/widgets/{id}/navigate/{direction}.
func (h *Handler) NavigateWidget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.placedWidget(w, r)
	if !ok {
		return
	}
	dir, err := widgetstate.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DIRECTION", "Direction must be previous, next or current", nil)
		return
	}

	state, err := h.states.Navigate(id, dir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_ERROR", "Failed to update widget week", err)
		return
	}

	view, outcome, err := h.reload(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RENDER_ERROR", "Failed to draw widget", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, WidgetResponse{State: state, View: view, Outcome: &outcome})
}

// reload loads the widget's period, redraws it and hands a failed outcome
// to the retry policy.
func (h *Handler) reload(ctx context.Context, widgetID int) (render.View, models.RefreshOutcome, error) {
	_, outcome := h.loader.LoadForWidget(ctx, widgetID, false)
	view, err := h.widgets.RefreshWidget(ctx, widgetID, outcome)
	if err != nil {
		return render.View{}, outcome, err
	}
	if outcome.IsError() {
		h.notifier.ReportOutcome(ctx, widgetID, outcome)
	}
	return view, outcome, nil
}

// Refresh handles POST /api/v1/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	status, err := h.maintenance.ForceRefreshAll(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrHostStopped) {
			respondError(w, http.StatusServiceUnavailable, "SCHEDULER_STOPPED", "Scheduler is not running", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to schedule refresh", err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, status)
}

// Reset handles POST /api/v1/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.maintenance.ResetWidgetData(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "RESET_FAILED", "Widget data reset incomplete", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]string{"message": "Widget data reset"})
}

// Health handles GET /api/v1/health. An unhealthy system answers 503 with
// the same body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.maintenance.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondSuccess(w, r, status, health)
}

// UpdateDevice handles PUT /api/v1/device.
func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a JSON object", err)
		return
	}
	if req.NetworkAvailable == nil && req.SignedIn == nil && req.BatteryOK == nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "At least one of network_available, signed_in, battery_ok is required", nil)
		return
	}

	if req.NetworkAvailable != nil {
		h.device.SetNetworkAvailable(*req.NetworkAvailable)
	}
	if req.SignedIn != nil {
		h.device.SetSignedIn(*req.SignedIn)
	}
	if req.BatteryOK != nil {
		h.device.SetBatteryOK(*req.BatteryOK)
	}

	resp := h.deviceState()
	logging.Ctx(r.Context()).Info().
		Bool("network", resp.NetworkAvailable).
		Bool("signed_in", resp.SignedIn).
		Bool("battery_ok", resp.BatteryOK).
		Msg("Device signals updated")
	respondSuccess(w, r, http.StatusOK, resp)
}

// GetDevice handles GET /api/v1/device.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.deviceState())
}

func (h *Handler) deviceState() DeviceResponse {
	return DeviceResponse{
		NetworkAvailable: h.device.IsNetworkAvailable(),
		SignedIn:         h.device.IsSignedIn(),
		BatteryOK:        h.device.IsBatteryOK(),
		ChangedAt:        h.device.ChangedAt(),
	}
}
