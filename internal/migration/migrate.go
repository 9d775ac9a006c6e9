// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// Offset key prefixes used by the legacy offsets file.
const (
	legacyOffsetPrefix       = "week_offset_"
	legacyWidgetOffsetPrefix = "widget_week_offset_"
)

// MigrationResult is the outcome of MigrateIfNeeded.
type MigrationResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Steps   []string `json:"steps,omitempty"`
	Err     error    `json:"-"`
}

// legacyGoals is widget_goals_sync.json. cached_goals is either a JSON
// array or a string holding one.
type legacyGoals struct {
	CachedGoals    json.RawMessage `json:"cached_goals"`
	CacheTimestamp int64           `json:"cache_timestamp"`
}

// legacyConfig is widget_config.json. Absent fields keep their defaults.
type legacyConfig struct {
	WidgetSize            *string `json:"widget_size"`
	ShowWeekNavigation    *bool   `json:"show_week_navigation"`
	AutoUpdateEnabled     *bool   `json:"auto_update_enabled"`
	UpdateIntervalMinutes *int    `json:"update_interval_minutes"`
	ThemeMode             *string `json:"theme_mode"`
	ShowCompletedGoals    *bool   `json:"show_completed_goals"`
}

// MigrateIfNeeded moves the legacy goals, preferences and offsets into the
// current layout and records the target version. It is a no-op once the
// version is current. On failure nothing is recorded, so the next start
// retries.
func (g *Guard) MigrateIfNeeded(ctx context.Context) MigrationResult {
	status := g.MigrationStatus()
	if status.IsCompleted {
		return MigrationResult{Success: true, Message: "Already migrated"}
	}

	log := logging.Ctx(ctx).With().Str("component", "migration").Logger()
	log.Info().Int("from_version", status.CurrentVersion).Int("to_version", status.TargetVersion).
		Msg("Starting widget data migration")

	var steps []string
	fail := func(err error) MigrationResult {
		metrics.RecordMigrationPhase("migrate", false)
		log.Error().Err(err).Msg("Widget data migration failed")
		return MigrationResult{Message: "Migration failed: " + err.Error(), Steps: steps, Err: err}
	}

	migrators := []struct {
		name string
		fn   func() (string, error)
	}{
		{"goals", g.migrateGoals},
		{"preferences", g.migratePreferences},
		{"offsets", g.migrateOffsets},
	}
	for _, m := range migrators {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		done, err := m.fn()
		if err != nil {
			return fail(wrapStep(m.name, err))
		}
		if done != "" {
			steps = append(steps, done)
		}
	}

	if err := g.recordVersion(status.TargetVersion); err != nil {
		return fail(fmt.Errorf("record version: %w", err))
	}

	metrics.RecordMigrationPhase("migrate", true)
	msg := "Migration completed"
	if len(steps) > 0 {
		msg += ": " + strings.Join(steps, ", ")
	}
	log.Info().Strs("steps", steps).Msg("Widget data migration completed")
	return MigrationResult{Success: true, Message: msg, Steps: steps}
}

// readLegacy decodes a legacy file into v. It reports false when the file
// does not exist.
func (g *Guard) readLegacy(name string, v any) (bool, error) {
	data, err := os.ReadFile(g.legacyPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func (g *Guard) migrateGoals() (string, error) {
	var legacy legacyGoals
	found, err := g.readLegacy(LegacyGoalsFile, &legacy)
	if err != nil || !found {
		return "", err
	}
	if len(legacy.CachedGoals) == 0 || legacy.CacheTimestamp <= 0 {
		g.logger.Debug().Msg("No cached goals to migrate")
		return "", nil
	}

	goals, err := decodeLegacyGoals(legacy.CachedGoals)
	if err != nil {
		return "", err
	}

	byPeriod := make(map[models.Period][]models.GoalSnapshot)
	skipped := 0
	for _, goal := range goals {
		p := goal.Period()
		if !p.Valid() {
			skipped++
			continue
		}
		byPeriod[p] = append(byPeriod[p], goal)
	}

	at := time.UnixMilli(legacy.CacheTimestamp)
	for p, items := range byPeriod {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
		if err := g.cache.WriteAt(p, items, at); err != nil {
			return "", fmt.Errorf("write %s: %w", p.Key(), err)
		}
	}

	g.logger.Info().
		Int("goals", len(goals)-skipped).
		Int("periods", len(byPeriod)).
		Int("skipped", skipped).
		Msg("Migrated cached goals")
	return fmt.Sprintf("Cached goals migrated (%d periods)", len(byPeriod)), nil
}

func decodeLegacyGoals(raw json.RawMessage) ([]models.GoalSnapshot, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode cached_goals: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	var goals []models.GoalSnapshot
	if err := json.Unmarshal(raw, &goals); err != nil {
		return nil, fmt.Errorf("decode cached_goals: %w", err)
	}
	return goals, nil
}

// migratePreferences never fails on a corrupt file; it stores the defaults
// instead.
func (g *Guard) migratePreferences() (string, error) {
	prefs := widgetstate.DefaultPreferences()

	var legacy legacyConfig
	found, err := g.readLegacy(LegacyConfigFile, &legacy)
	switch {
	case err != nil:
		g.logger.Warn().Err(err).Msg("Unreadable legacy widget config, saving defaults")
	case found:
		if legacy.WidgetSize != nil {
			prefs.WidgetSize = widgetstate.WidgetSize(*legacy.WidgetSize)
		}
		if legacy.ShowWeekNavigation != nil {
			prefs.ShowWeekNavigation = *legacy.ShowWeekNavigation
		}
		if legacy.AutoUpdateEnabled != nil {
			prefs.AutoUpdateEnabled = *legacy.AutoUpdateEnabled
		}
		if legacy.UpdateIntervalMinutes != nil {
			prefs.UpdateIntervalMinutes = *legacy.UpdateIntervalMinutes
		}
		if legacy.ThemeMode != nil {
			prefs.ThemeMode = widgetstate.ThemeMode(*legacy.ThemeMode)
		}
		if legacy.ShowCompletedGoals != nil {
			prefs.ShowCompletedGoals = *legacy.ShowCompletedGoals
		}
	default:
		return "", nil
	}

	if _, err := g.states.SavePreferences(prefs); err != nil {
		return "", err
	}
	return "Widget configuration migrated", nil
}

func (g *Guard) migrateOffsets() (string, error) {
	var legacy map[string]int
	found, err := g.readLegacy(LegacyOffsetsFile, &legacy)
	if err != nil || !found {
		return "", err
	}

	offsets := parseLegacyOffsets(legacy)
	ids := make([]int, 0, len(offsets))
	for id := range offsets {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err := g.states.SetOffset(id, offsets[id]); err != nil {
			return "", fmt.Errorf("widget %d: %w", id, err)
		}
	}
	g.logger.Info().Int("widgets", len(ids)).Msg("Migrated widget offsets")
	return fmt.Sprintf("Widget states migrated (%d widgets)", len(ids)), nil
}

// parseLegacyOffsets maps widget ids to clamped offsets. A non-zero
// week_offset_{id} wins over widget_week_offset_{id}. Unrecognised keys are
// ignored.
func parseLegacyOffsets(legacy map[string]int) map[int]int {
	primary := make(map[int]int)
	secondary := make(map[int]int)
	for key, offset := range legacy {
		var (
			target map[int]int
			idStr  string
		)
		if rest, ok := strings.CutPrefix(key, legacyWidgetOffsetPrefix); ok {
			target, idStr = secondary, rest
		} else if rest, ok := strings.CutPrefix(key, legacyOffsetPrefix); ok {
			target, idStr = primary, rest
		} else {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			continue
		}
		target[id] = offset
	}

	out := make(map[int]int, len(primary)+len(secondary))
	for id, off := range secondary {
		out[id] = models.ClampWeekOffset(off)
	}
	for id, off := range primary {
		if off != 0 || out[id] == 0 {
			out[id] = models.ClampWeekOffset(off)
		}
	}
	return out
}
