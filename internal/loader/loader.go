// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/freshness"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
)

const breakerName = "goal-repository"

// Outcome paths, used as metric labels.
const (
	PathFreshCache = "fresh_cache"
	PathLive       = "live"
	PathStaleCache = "stale_cache"
	PathError      = "error"
)

// PeriodOutcome pairs a period with its load result.
type PeriodOutcome struct {
	Period  models.Period         `json:"period"`
	Outcome models.RefreshOutcome `json:"outcome"`
}

// Loader resolves the goals of a period through the fallback chain
// fresh cache → live repository → stale cache → error.
type Loader struct {
	cfg    config.LoaderConfig
	maxAge time.Duration
	repo   Repository
	cache  Cache
	conn   Connectivity
	auth   Auth
	states StateReader
	now    func() time.Time
	logger zerolog.Logger

	group   singleflight.Group
	cb      *gobreaker.CircuitBreaker[[]models.DomainGoal]
	limiter *rate.Limiter
}

// Option configures a Loader.
type Option func(*Loader)

// WithConnectivity sets the connectivity collaborator. Without one the
// network is assumed available.
func WithConnectivity(c Connectivity) Option {
	return func(l *Loader) { l.conn = c }
}

// WithAuth sets the auth collaborator. Without one every live fetch fails
// with an authentication error.
func WithAuth(a Auth) Option {
	return func(l *Loader) { l.auth = a }
}

// WithStates sets the widget state reader used by LoadForWidget.
func WithStates(s StateReader) Option {
	return func(l *Loader) { l.states = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// New creates a Loader. maxAge is the cache freshness threshold.
func New(cfg config.LoaderConfig, maxAge time.Duration, repo Repository, cache Cache, opts ...Option) *Loader {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.MaxGoalsPerWeek <= 0 {
		cfg.MaxGoalsPerWeek = 6
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 3
	}
	if maxAge <= 0 {
		maxAge = freshness.DefaultMaxAge
	}

	l := &Loader{
		cfg:    cfg,
		maxAge: maxAge,
		repo:   repo,
		cache:  cache,
		now:    time.Now,
		logger: logging.WithComponent("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	l.limiter = rate.NewLimiter(limit, burst)

	metrics.SetBreakerState(breakerName, 0)
	threshold := cfg.BreakerFailureThreshold
	l.cb = gobreaker.NewCircuitBreaker[[]models.DomainGoal](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about repository health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.SetBreakerState(name, breakerStateValue(to))
		},
	})
	return l
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState returns the repository circuit breaker state.
func (l *Loader) BreakerState() string {
	return l.cb.State().String()
}

// Load resolves the goals for period. It never returns an error; failures
// are carried in the outcome.
func (l *Loader) Load(ctx context.Context, period models.Period, forceRefresh bool) models.RefreshOutcome {
	log := logging.Ctx(ctx).With().Str("period", period.Key()).Bool("force", forceRefresh).Logger()

	entry, hit := l.cache.Entry(period)
	freshHit := hit && len(entry.Items) > 0 && freshness.IsUsable(entry.CachedAt(), l.now(), l.maxAge)

	var kind models.ErrorKind
	switch freshness.Decide(forceRefresh, freshHit, l.networkAvailable()) {
	case freshness.ServeCache:
		metrics.RecordLoad(PathFreshCache, "")
		return models.Success(entry.Items, false)

	case freshness.SkipNetworkDown:
		kind = models.ErrorNetworkUnavailable

	case freshness.FetchLive:
		if !l.signedIn() {
			kind = models.ErrorAuthentication
			break
		}
		items, err := l.fetch(ctx, period)
		if err == nil {
			metrics.RecordLoad(PathLive, "")
			return models.Success(items, false)
		}
		kind = Classify(err)
		log.Warn().Err(err).Str("error_kind", string(kind)).Msg("Live goal fetch failed")
	}

	if cached := l.cache.ReadSync(period); len(cached) > 0 {
		metrics.RecordLoad(PathStaleCache, string(kind))
		return models.Success(cached, true)
	}
	metrics.RecordLoad(PathError, string(kind))
	return models.FailureKind(kind)
}

func (l *Loader) networkAvailable() bool {
	return l.conn == nil || l.conn.IsNetworkAvailable()
}

func (l *Loader) signedIn() bool {
	return l.auth != nil && l.auth.IsSignedIn()
}

// fetch runs one live fetch per period at a time. Concurrent callers share
// the in-flight result; each still honours its own ctx.
func (l *Loader) fetch(ctx context.Context, period models.Period) ([]models.GoalSnapshot, error) {
	ch := l.group.DoChan(period.Key(), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.FetchTimeout)
		defer cancel()
		return l.fetchLive(fetchCtx, period)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.LoaderSharedFetches.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.GoalSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) fetchLive(ctx context.Context, period models.Period) ([]models.GoalSnapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordFetch(time.Since(start)) }()

	if err := l.limiter.Wait(ctx); err != nil {
		// Wait fails early when the slot lies past the deadline.
		cause := ctx.Err()
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("wait for repository slot: %v: %w", err, cause)
	}

	goals, err := l.cb.Execute(func() ([]models.DomainGoal, error) {
		return l.repo.GetGoalsByWeek(ctx, period.WeekOfYear, period.Year)
	})
	if err != nil {
		return nil, err
	}

	items := Project(goals, period, l.cfg.MaxGoalsPerWeek)
	l.cache.WriteSync(period, items)
	return items, nil
}

// Project converts repository goals to snapshots of period, ordered by
// position and capped at max.
func Project(goals []models.DomainGoal, period models.Period, max int) []models.GoalSnapshot {
	inPeriod := make([]*models.DomainGoal, 0, len(goals))
	for i := range goals {
		if goals[i].InPeriod(period) {
			inPeriod = append(inPeriod, &goals[i])
		}
	}
	sort.SliceStable(inPeriod, func(i, j int) bool {
		return inPeriod[i].Position < inPeriod[j].Position
	})
	if max > 0 && len(inPeriod) > max {
		inPeriod = inPeriod[:max]
	}

	items := make([]models.GoalSnapshot, len(inPeriod))
	for i, g := range inPeriod {
		items[i] = models.SnapshotOf(g)
	}
	return items
}

// Classify maps a fetch error to an ErrorKind.
func Classify(err error) models.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.ErrorTimeout
	case errors.Is(err, ErrUnauthenticated):
		return models.ErrorAuthentication
	case errors.Is(err, ErrNetwork):
		return models.ErrorNetworkUnavailable
	default:
		return models.ErrorDataLoadFailure
	}
}

// LoadWindow loads the current week and weeksBack previous weeks, newest
// first. A failing period never affects the others.
func (l *Loader) LoadWindow(ctx context.Context, now time.Time, weeksBack int, force bool) []PeriodOutcome {
	periods := models.CurrentAndPrevious(now, weeksBack)
	out := make([]PeriodOutcome, 0, len(periods))
	for _, p := range periods {
		out = append(out, PeriodOutcome{Period: p, Outcome: l.Load(ctx, p, force)})
	}
	return out
}

// Preload warms the cache for the current and previous week without forcing
// a live fetch.
func (l *Loader) Preload(ctx context.Context) []PeriodOutcome {
	results := l.LoadWindow(ctx, l.now(), 1, false)
	for _, r := range results {
		if r.Outcome.IsError() {
			l.logger.Warn().
				Str("period", r.Period.Key()).
				Str("error_kind", string(r.Outcome.ErrorKind())).
				Msg("Preload failed")
		}
	}
	return results
}

// LoadForWidget loads the period a widget instance is currently showing.
func (l *Loader) LoadForWidget(ctx context.Context, widgetID int, force bool) (models.Period, models.RefreshOutcome) {
	state := models.NewWidgetRuntimeState(widgetID)
	if l.states != nil {
		st, err := l.states.Get(widgetID)
		if err != nil {
			l.logger.Warn().Err(err).Int("widget_id", widgetID).Msg("Using current week for unreadable widget state")
		} else {
			state = st
		}
	}
	period := state.Period(l.now())
	outcome := l.Load(ctx, period, force)
	if state.LastError != nil && outcome.IsSuccess() && !outcome.IsStale && l.states != nil {
		if err := l.states.ClearError(widgetID); err != nil {
			l.logger.Warn().Err(err).Int("widget_id", widgetID).Msg("Failed to clear widget error")
		}
	}
	return period, outcome
}
