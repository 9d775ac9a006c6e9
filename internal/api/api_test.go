// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/fanout"
	"github.com/tomtom215/weekline/internal/initializer"
	"github.com/tomtom215/weekline/internal/loader"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/render"
	"github.com/tomtom215/weekline/internal/scheduler"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

type fakeNotifier struct {
	mu       sync.Mutex
	events   []fanout.Event
	reported []models.RefreshOutcome
	failStep bool
}

func (f *fakeNotifier) Notify(_ context.Context, ev fanout.Event) fanout.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	report := fanout.Report{Event: ev.Type(), MessageID: "m-1", Steps: []fanout.StepResult{{Name: fanout.StepDirectRefresh}}}
	if f.failStep {
		err := errors.New("no publisher")
		report.Steps = append(report.Steps, fanout.StepResult{Name: fanout.StepBroadcast, Err: err, Error: err.Error()})
	}
	return report
}

func (f *fakeNotifier) ReportOutcome(_ context.Context, _ int, outcome models.RefreshOutcome) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, outcome)
	return outcome.ErrorKind().Retryable()
}

type fakeMaintenance struct {
	health   initializer.Health
	forced   int
	resets   int
	forceErr error
	resetErr error
}

func (f *fakeMaintenance) Health() initializer.Health { return f.health }

func (f *fakeMaintenance) ForceRefreshAll(context.Context) (scheduler.JobStatus, error) {
	f.forced++
	return scheduler.JobStatus{Identity: "force", State: scheduler.StateScheduled}, f.forceErr
}

func (f *fakeMaintenance) ResetWidgetData(context.Context) error {
	f.resets++
	return f.resetErr
}

type fakeStates struct {
	mu     sync.Mutex
	states map[int]models.WidgetRuntimeState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[int]models.WidgetRuntimeState)}
}

func (f *fakeStates) Get(id int) (models.WidgetRuntimeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[id]; ok {
		return st, nil
	}
	return models.NewWidgetRuntimeState(id), nil
}

func (f *fakeStates) Navigate(id int, dir widgetstate.Direction) (models.WidgetRuntimeState, error) {
	st, _ := f.Get(id)
	switch dir {
	case widgetstate.Previous:
		st.WeekOffset--
	case widgetstate.Next:
		st.WeekOffset++
	case widgetstate.Current:
		st.WeekOffset = 0
	}
	st.WeekOffset = models.ClampWeekOffset(st.WeekOffset)
	f.mu.Lock()
	f.states[id] = st
	f.mu.Unlock()
	return st, nil
}

func (f *fakeStates) LoadPreferences() (widgetstate.Preferences, error) {
	return widgetstate.DefaultPreferences(), nil
}

type fakeCache struct{}

func (fakeCache) ReadSync(models.Period) []models.GoalSnapshot {
	return []models.GoalSnapshot{{ID: "g1", Text: "Run 10k", Status: models.GoalStatusActive}}
}

type fakeLoader struct {
	outcome models.RefreshOutcome
	loads   int
}

func (f *fakeLoader) LoadForWidget(context.Context, int, bool) (models.Period, models.RefreshOutcome) {
	f.loads++
	return models.Period{WeekOfYear: 50, Year: 2024}, f.outcome
}

type testServer struct {
	notifier    *fakeNotifier
	maintenance *fakeMaintenance
	states      *fakeStates
	loader      *fakeLoader
	device      *loader.Device
	handler     http.Handler
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()
	ts := &testServer{
		notifier:    &fakeNotifier{},
		maintenance: &fakeMaintenance{health: initializer.Health{Healthy: true, Initialized: true, BreakerState: "closed"}},
		states:      newFakeStates(),
		loader:      &fakeLoader{outcome: models.Success([]models.GoalSnapshot{{ID: "g1"}}, false)},
		device:      loader.NewDevice(true, true),
	}

	registry := render.NewRegistry(nil)
	registry.Register(render.NewLogSurface(render.Size2x3, fakeCache{}, ts.states, 1, 2))

	h := NewHandler(HandlerDeps{
		Notifier:    ts.notifier,
		Maintenance: ts.maintenance,
		States:      ts.states,
		Widgets:     registry,
		Loader:      ts.loader,
		Device:      ts.device,
	})
	ts.handler = NewRouter(h, cfg).SetupChi()
	return ts
}

func noRateLimit() config.ServerConfig {
	return config.ServerConfig{RateLimitDisabled: true}
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func TestPostEvent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantEvent  fanout.Event
	}{
		{
			name:       "goal created",
			body:       `{"type":"goal_created","goal_id":"g1"}`,
			wantStatus: http.StatusAccepted,
			wantEvent:  fanout.GoalCreated{GoalID: "g1"},
		},
		{
			name:       "status changed",
			body:       `{"type":"goal_status_changed","goal_id":"g1","new_status":"completed"}`,
			wantStatus: http.StatusAccepted,
			wantEvent:  fanout.GoalStatusChanged{GoalID: "g1", NewStatus: models.GoalStatusCompleted},
		},
		{
			name:       "week changed needs no goal",
			body:       `{"type":"week_changed"}`,
			wantStatus: http.StatusAccepted,
			wantEvent:  fanout.WeekChanged{},
		},
		{name: "unknown type", body: `{"type":"goal_renamed","goal_id":"g1"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "bad status", body: `{"type":"goal_status_changed","goal_id":"g1","new_status":"PAUSED"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "missing goal id", body: `{"type":"goal_deleted"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "malformed json", body: `{"type":`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_BODY"},
		{name: "empty body", wantStatus: http.StatusBadRequest, wantCode: "INVALID_BODY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, noRateLimit())
			w, env := ts.do(t, http.MethodPost, "/api/v1/events", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
				}
				if len(ts.notifier.events) != 0 {
					t.Error("rejected event reached the notifier")
				}
				return
			}
			if len(ts.notifier.events) != 1 || ts.notifier.events[0] != tt.wantEvent {
				t.Errorf("notified = %v, want %v", ts.notifier.events, tt.wantEvent)
			}
			var report fanout.Report
			if err := json.Unmarshal(env.Data, &report); err != nil {
				t.Fatal(err)
			}
			if report.Event != tt.wantEvent.Type() || report.MessageID == "" {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestPostEventReportsFailedSteps(t *testing.T) {
	ts := newTestServer(t, noRateLimit())
	ts.notifier.failStep = true

	w, env := ts.do(t, http.MethodPost, "/api/v1/events", `{"type":"goal_updated","goal_id":"g1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var report fanout.Report
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Steps) != 2 || report.Steps[1].Error == "" {
		t.Errorf("steps = %+v, want failed broadcast listed", report.Steps)
	}
}

func TestGetWidget(t *testing.T) {
	ts := newTestServer(t, noRateLimit())

	w, env := ts.do(t, http.MethodGet, "/api/v1/widgets/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp WidgetResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.WidgetID != 1 || resp.View.WidgetID != 1 || resp.View.State != render.ViewGoals {
		t.Errorf("response = %+v", resp)
	}
	if ts.loader.loads != 1 {
		t.Errorf("loads = %d, want 1 for an undrawn widget", ts.loader.loads)
	}

	ts.do(t, http.MethodGet, "/api/v1/widgets/1", "")
	if ts.loader.loads != 1 {
		t.Errorf("loads = %d, want drawn widget served from its view", ts.loader.loads)
	}
}

func TestWidgetNotFound(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unplaced widget", http.MethodGet, "/api/v1/widgets/42", http.StatusNotFound, "WIDGET_NOT_FOUND"},
		{"non numeric id", http.MethodGet, "/api/v1/widgets/abc", http.StatusBadRequest, "INVALID_WIDGET_ID"},
		{"navigate unplaced", http.MethodPost, "/api/v1/widgets/42/navigate/next", http.StatusNotFound, "WIDGET_NOT_FOUND"},
		{"bad direction", http.MethodPost, "/api/v1/widgets/1/navigate/sideways", http.StatusBadRequest, "INVALID_DIRECTION"},
		{"unknown route", http.MethodGet, "/api/v1/nothing", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, noRateLimit())
			w, env := ts.do(t, tt.method, tt.path, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestNavigateWidget(t *testing.T) {
	ts := newTestServer(t, noRateLimit())

	for i := 0; i < 6; i++ {
		ts.do(t, http.MethodPost, "/api/v1/widgets/2/navigate/previous", "")
	}
	w, env := ts.do(t, http.MethodPost, "/api/v1/widgets/2/navigate/previous", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp WidgetResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.WeekOffset != models.MinWeekOffset {
		t.Errorf("offset = %d, want clamped to %d", resp.State.WeekOffset, models.MinWeekOffset)
	}
	if resp.View.CanGoBack || !resp.View.CanGoForward {
		t.Errorf("view navigation = back %v forward %v", resp.View.CanGoBack, resp.View.CanGoForward)
	}

	_, env = ts.do(t, http.MethodPost, "/api/v1/widgets/2/navigate/current", "")
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.WeekOffset != 0 {
		t.Errorf("offset after current = %d, want 0", resp.State.WeekOffset)
	}
}

func TestNavigateReportsFailedLoad(t *testing.T) {
	ts := newTestServer(t, noRateLimit())
	ts.loader.outcome = models.FailureKind(models.ErrorTimeout)

	w, env := ts.do(t, http.MethodPost, "/api/v1/widgets/1/navigate/previous", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(ts.notifier.reported) != 1 {
		t.Fatalf("reported outcomes = %d, want 1", len(ts.notifier.reported))
	}
	var resp WidgetResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.View.Stale || resp.View.ErrorKind != models.ErrorTimeout {
		t.Errorf("view = %+v, want stale cached goals with timeout", resp.View)
	}
}

func TestRefreshAndReset(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		forceErr   error
		resetErr   error
		wantStatus int
	}{
		{name: "refresh", path: "/api/v1/refresh", wantStatus: http.StatusAccepted},
		{name: "refresh with stopped scheduler", path: "/api/v1/refresh", forceErr: scheduler.ErrHostStopped, wantStatus: http.StatusServiceUnavailable},
		{name: "refresh failure", path: "/api/v1/refresh", forceErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
		{name: "reset", path: "/api/v1/reset", wantStatus: http.StatusOK},
		{name: "reset failure", path: "/api/v1/reset", resetErr: errors.New("disk full"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, noRateLimit())
			ts.maintenance.forceErr = tt.forceErr
			ts.maintenance.resetErr = tt.resetErr

			w, _ := ts.do(t, http.MethodPost, tt.path, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ts.maintenance.forced+ts.maintenance.resets != 1 {
				t.Errorf("maintenance calls = %d, want 1", ts.maintenance.forced+ts.maintenance.resets)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, noRateLimit())

	w, env := ts.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var health initializer.Health
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatal(err)
	}
	if !health.Healthy || health.BreakerState != "closed" {
		t.Errorf("health = %+v", health)
	}

	ts.maintenance.health.Healthy = false
	ts.maintenance.health.BreakerState = "open"
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", w.Code)
	}
}

func TestUpdateDevice(t *testing.T) {
	ts := newTestServer(t, noRateLimit())

	w, env := ts.do(t, http.MethodPut, "/api/v1/device", `{"network_available":false,"battery_ok":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp DeviceResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.NetworkAvailable || resp.BatteryOK || !resp.SignedIn {
		t.Errorf("device = %+v, want network and battery off, session kept", resp)
	}
	if ts.device.IsNetworkAvailable() {
		t.Error("device network still available")
	}

	if w, _ := ts.do(t, http.MethodPut, "/api/v1/device", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty update status = %d, want 400", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, noRateLimit())

	w, env := ts.do(t, http.MethodGet, "/api/v1/health", "")
	id := w.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("X-Request-ID not set")
	}
	if env.Metadata.RequestID != id {
		t.Errorf("metadata request id = %q, want %q", env.Metadata.RequestID, id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.ServerConfig
		requests    int
		wantLimited int
	}{
		{
			name:        "enabled",
			cfg:         config.ServerConfig{RateLimitRequests: 3, RateLimitWindow: time.Minute},
			requests:    5,
			wantLimited: 2,
		},
		{
			name:     "disabled",
			cfg:      config.ServerConfig{RateLimitDisabled: true, RateLimitRequests: 3, RateLimitWindow: time.Minute},
			requests: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.cfg)
			limited := 0
			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
				req.RemoteAddr = "192.168.1.1:12345"
				w := httptest.NewRecorder()
				ts.handler.ServeHTTP(w, req)
				if w.Code == http.StatusTooManyRequests {
					limited++
				}
			}
			if limited != tt.wantLimited {
				t.Errorf("limited = %d, want %d", limited, tt.wantLimited)
			}
		})
	}
}

func TestReadRoutesNotRateLimited(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute})
	for i := 0; i < 3; i++ {
		if w, _ := ts.do(t, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	ts := newTestServer(t, noRateLimit())
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/widgets/{id}", "200")
	before := testutil.ToFloat64(counter)

	ts.do(t, http.MethodGet, "/api/v1/widgets/1", "")

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("api requests = %v, want %v", got, before+1)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, noRateLimit())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "weekline_") {
		t.Error("metrics output has no weekline series")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nforged", `line\x0aforged`},
		{"tab\there", `tab\x09here`},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
