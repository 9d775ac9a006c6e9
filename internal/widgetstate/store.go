// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package widgetstate

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/models"
)

const (
	stateKeyPrefix = "widget_state_"
	prefsKey       = "widget_prefs"
)

// Direction is a week navigation step.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
	Current  Direction = "current"
)

// ParseDirection parses a navigation direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case Previous, Next, Current:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Store persists per-instance widget state and the shared preferences in the
// BadgerDB database owned by the cache store.
type Store struct {
	db     *badger.DB
	now    func() time.Time
	logger zerolog.Logger
}

// New returns a Store over db.
func New(db *badger.DB) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logging.WithComponent("widgetstate"),
	}
}

// WithClock overrides the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func stateKey(widgetID int) []byte {
	return []byte(stateKeyPrefix + strconv.Itoa(widgetID))
}

// Get returns the state for widgetID, or a fresh default state.
func (s *Store) Get(widgetID int) (models.WidgetRuntimeState, error) {
	state := models.NewWidgetRuntimeState(widgetID)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(widgetID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.NewWidgetRuntimeState(widgetID), nil
	}
	if err != nil {
		return models.NewWidgetRuntimeState(widgetID), fmt.Errorf("read widget %d state: %w", widgetID, err)
	}
	state.WeekOffset = models.ClampWeekOffset(state.WeekOffset)
	return state, nil
}

// Save persists state, clamping its week offset.
func (s *Store) Save(state models.WidgetRuntimeState) error {
	state.WeekOffset = models.ClampWeekOffset(state.WeekOffset)
	state.UpdatedAt = s.now()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal widget %d state: %w", state.WidgetID, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.WidgetID), payload)
	}); err != nil {
		return fmt.Errorf("save widget %d state: %w", state.WidgetID, err)
	}
	return nil
}

// update applies fn to the current state and saves the result.
func (s *Store) update(widgetID int, fn func(*models.WidgetRuntimeState)) (models.WidgetRuntimeState, error) {
	state, err := s.Get(widgetID)
	if err != nil {
		s.logger.Warn().Err(err).Int("widget_id", widgetID).Msg("Replacing unreadable widget state")
	}
	fn(&state)
	if err := s.Save(state); err != nil {
		return state, err
	}
	state.WeekOffset = models.ClampWeekOffset(state.WeekOffset)
	return state, nil
}

// Delete removes a widget instance's state.
func (s *Store) Delete(widgetID int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(stateKey(widgetID))
	})
}

// SetOffset stores a week offset, clamped to [MinWeekOffset, MaxWeekOffset].
func (s *Store) SetOffset(widgetID, offset int) (models.WidgetRuntimeState, error) {
	return s.update(widgetID, func(st *models.WidgetRuntimeState) {
		st.WeekOffset = models.ClampWeekOffset(offset)
		st.IsConfigured = true
		s.recordSelection(st)
	})
}

// Navigate moves a widget one week back or forward, or back to the current
// week. Navigation past either bound is a no-op.
func (s *Store) Navigate(widgetID int, dir Direction) (models.WidgetRuntimeState, error) {
	return s.update(widgetID, func(st *models.WidgetRuntimeState) {
		switch dir {
		case Previous:
			st.WeekOffset = models.ClampWeekOffset(st.WeekOffset - 1)
		case Next:
			st.WeekOffset = models.ClampWeekOffset(st.WeekOffset + 1)
		case Current:
			st.WeekOffset = 0
		}
		s.recordSelection(st)
	})
}

func (s *Store) recordSelection(st *models.WidgetRuntimeState) {
	p := st.Period(s.now())
	st.LastSelectedWeek = p.WeekOfYear
	st.LastSelectedYear = p.Year
}

// RecordError stores the last error shown on a widget.
func (s *Store) RecordError(widgetID int, werr *models.WidgetError) error {
	_, err := s.update(widgetID, func(st *models.WidgetRuntimeState) {
		st.LastError = werr
	})
	return err
}

// ClearError clears a widget's last error.
func (s *Store) ClearError(widgetID int) error {
	_, err := s.update(widgetID, func(st *models.WidgetRuntimeState) {
		st.LastError = nil
	})
	return err
}

// List returns every stored widget state ordered by widget ID.
func (s *Store) List() ([]models.WidgetRuntimeState, error) {
	var states []models.WidgetRuntimeState
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(stateKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var st models.WidgetRuntimeState
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				s.logger.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable widget state")
				continue
			}
			st.WeekOffset = models.ClampWeekOffset(st.WeekOffset)
			states = append(states, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list widget states: %w", err)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].WidgetID < states[j].WidgetID })
	return states, nil
}

// ResetOffsets moves every widget back to the current week.
func (s *Store) ResetOffsets() error {
	states, err := s.List()
	if err != nil {
		return err
	}
	for _, st := range states {
		if st.WeekOffset == 0 {
			continue
		}
		if _, err := s.SetOffset(st.WidgetID, 0); err != nil {
			return err
		}
	}
	return nil
}

// ResetAll deletes every widget state. Preferences are kept.
func (s *Store) ResetAll() error {
	if err := s.db.DropPrefix([]byte(stateKeyPrefix)); err != nil {
		return fmt.Errorf("reset widget states: %w", err)
	}
	s.logger.Info().Msg("Widget state reset")
	return nil
}
