// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package migration

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
	"github.com/tomtom215/weekline/internal/widgetstate"
)

// Legacy file names inside the legacy directory.
const (
	LegacyGoalsFile   = "widget_goals_sync.json"
	LegacyConfigFile  = "widget_config.json"
	LegacyOffsetsFile = "widget_week_offsets.json"
)

// LegacyFiles lists every legacy file in backup order.
var LegacyFiles = []string{LegacyGoalsFile, LegacyConfigFile, LegacyOffsetsFile}

// CurrentVersion is the schema version this build writes.
const CurrentVersion = 1

const (
	versionKey   = "migration_state/version"
	timestampKey = "migration_state/timestamp"
)

// CacheWriter stores one period with an explicit timestamp.
type CacheWriter interface {
	WriteAt(period models.Period, items []models.GoalSnapshot, at time.Time) error
}

// StateWriter persists preferences and widget offsets.
type StateWriter interface {
	SavePreferences(prefs widgetstate.Preferences) (widgetstate.Preferences, error)
	SetOffset(widgetID, offset int) (models.WidgetRuntimeState, error)
}

// Guard moves the legacy JSON files into the BadgerDB layout exactly once.
type Guard struct {
	db     *badger.DB
	cfg    config.MigrationConfig
	cache  CacheWriter
	states StateWriter
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Guard. The schema version is kept in db.
func New(db *badger.DB, cfg config.MigrationConfig, cache CacheWriter, states StateWriter) *Guard {
	if cfg.TargetVersion <= 0 {
		cfg.TargetVersion = CurrentVersion
	}
	return &Guard{
		db:     db,
		cfg:    cfg,
		cache:  cache,
		states: states,
		now:    time.Now,
		logger: logging.WithComponent("migration"),
	}
}

// WithClock overrides the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) legacyPath(name string) string {
	return filepath.Join(g.cfg.LegacyDir, name)
}

// MigrationStatus reads the stored schema version. A missing or unreadable
// version counts as 0.
func (g *Guard) MigrationStatus() models.MigrationStatus {
	status := models.MigrationStatus{TargetVersion: g.cfg.TargetVersion}

	err := g.db.View(func(txn *badger.Txn) error {
		version, err := readInt64(txn, versionKey)
		if err != nil {
			return err
		}
		status.CurrentVersion = int(version)

		ts, err := readInt64(txn, timestampKey)
		if err == nil && ts > 0 {
			status.Timestamp = time.UnixMilli(ts)
		}
		return nil
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		g.logger.Warn().Err(err).Msg("Failed to read migration version")
	}

	status.IsCompleted = status.CurrentVersion >= status.TargetVersion
	return status
}

func (g *Guard) recordVersion(version int) error {
	return g.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(versionKey), encodeInt64(int64(version))); err != nil {
			return err
		}
		return txn.Set([]byte(timestampKey), encodeInt64(g.now().UnixMilli()))
	})
}

func readInt64(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	var v int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return ErrCorruptVersion
		}
		v = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return v, err
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// CleanupOldData deletes the legacy files. It does nothing unless the
// migration has completed, and reports whether every file is gone.
func (g *Guard) CleanupOldData() bool {
	if !g.MigrationStatus().IsCompleted {
		g.logger.Warn().Msg("Skipping legacy cleanup, migration not completed")
		return false
	}

	ok := true
	for _, name := range LegacyFiles {
		if err := os.Remove(g.legacyPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn().Err(err).Str("file", name).Msg("Failed to remove legacy file")
			ok = false
		}
	}
	metrics.RecordMigrationPhase("cleanup", ok)
	if ok {
		g.logger.Info().Msg("Legacy widget data removed")
	}
	return ok
}

// RunReport is the outcome of Run.
type RunReport struct {
	Backup    BackupResult    `json:"backup"`
	Migration MigrationResult `json:"migration"`
	CleanedUp bool            `json:"cleaned_up"`

	// Degraded is set when migration ran without a backup.
	Degraded bool `json:"degraded"`
}

// Run backs up, migrates and cleans up, in that order. A failed backup does
// not stop the migration; a failed migration keeps the legacy files and
// skips cleanup. Run never fails startup.
func (g *Guard) Run(ctx context.Context) RunReport {
	var report RunReport

	if g.MigrationStatus().IsCompleted {
		report.Migration = MigrationResult{Success: true, Message: "Already migrated"}
		if g.hasLegacyData() {
			report.CleanedUp = g.CleanupOldData()
		}
		return report
	}

	report.Backup = g.Backup(ctx)
	if !report.Backup.Success && !errors.Is(report.Backup.Err, ErrNoLegacyData) {
		report.Degraded = true
		logging.Ctx(ctx).Warn().Err(report.Backup.Err).Msg("Legacy backup failed, migrating degraded")
	}

	report.Migration = g.MigrateIfNeeded(ctx)
	if !report.Migration.Success {
		logging.Ctx(ctx).Warn().Err(report.Migration.Err).Msg("Migration failed, keeping legacy data")
		return report
	}

	report.CleanedUp = g.CleanupOldData()
	return report
}

func (g *Guard) hasLegacyData() bool {
	for _, name := range LegacyFiles {
		if _, err := os.Stat(g.legacyPath(name)); err == nil {
			return true
		}
	}
	return false
}

func wrapStep(step string, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
