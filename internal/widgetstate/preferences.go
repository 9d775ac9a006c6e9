// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package widgetstate

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/weekline/internal/validation"
)

// WidgetSize is the configured widget layout.
type WidgetSize string

const (
	Size2x3  WidgetSize = "2x3"
	Size3x2  WidgetSize = "3x2"
	SizeAuto WidgetSize = "auto"
)

// ThemeMode selects the widget color scheme.
type ThemeMode string

const (
	ThemeAuto  ThemeMode = "auto"
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
)

const (
	MinUpdateIntervalMinutes     = 5
	MaxUpdateIntervalMinutes     = 120
	DefaultUpdateIntervalMinutes = 30
)

// Preferences is the widget configuration shared by every instance.
type Preferences struct {
	WidgetSize            WidgetSize `json:"widget_size" validate:"oneof=2x3 3x2 auto"`
	ShowWeekNavigation    bool       `json:"show_week_navigation"`
	AutoUpdateEnabled     bool       `json:"auto_update_enabled"`
	UpdateIntervalMinutes int        `json:"update_interval_minutes" validate:"min=5,max=120"`
	ThemeMode             ThemeMode  `json:"theme_mode" validate:"oneof=auto light dark"`
	ShowCompletedGoals    bool       `json:"show_completed_goals"`
}

// DefaultPreferences returns the out-of-the-box configuration.
func DefaultPreferences() Preferences {
	return Preferences{
		WidgetSize:            Size2x3,
		ShowWeekNavigation:    true,
		AutoUpdateEnabled:     true,
		UpdateIntervalMinutes: DefaultUpdateIntervalMinutes,
		ThemeMode:             ThemeAuto,
		ShowCompletedGoals:    true,
	}
}

// Validate checks p without modifying it.
func (p Preferences) Validate() error {
	return validation.ValidateStruct(&p)
}

// Normalize returns p with every invalid field replaced: unknown sizes fall
// back to 2x3, unknown themes to auto, and the interval is clamped.
func (p Preferences) Normalize() Preferences {
	switch p.WidgetSize {
	case Size2x3, Size3x2, SizeAuto:
	default:
		p.WidgetSize = Size2x3
	}
	switch p.ThemeMode {
	case ThemeAuto, ThemeLight, ThemeDark:
	default:
		p.ThemeMode = ThemeAuto
	}
	if p.UpdateIntervalMinutes < MinUpdateIntervalMinutes {
		p.UpdateIntervalMinutes = MinUpdateIntervalMinutes
	}
	if p.UpdateIntervalMinutes > MaxUpdateIntervalMinutes {
		p.UpdateIntervalMinutes = MaxUpdateIntervalMinutes
	}
	return p
}

// LoadPreferences returns the stored preferences, normalized. Missing
// preferences yield the defaults.
func (s *Store) LoadPreferences() (Preferences, error) {
	prefs := DefaultPreferences()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefsKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &prefs)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return DefaultPreferences(), fmt.Errorf("read widget preferences: %w", err)
	}

	if verr := prefs.Validate(); verr != nil {
		s.logger.Warn().Err(verr).Msg("Normalizing invalid widget preferences")
	}
	return prefs.Normalize(), nil
}

// SavePreferences normalizes and stores prefs, returning what was stored.
func (s *Store) SavePreferences(prefs Preferences) (Preferences, error) {
	prefs = prefs.Normalize()
	payload, err := json.Marshal(prefs)
	if err != nil {
		return prefs, fmt.Errorf("marshal widget preferences: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefsKey), payload)
	}); err != nil {
		return prefs, fmt.Errorf("save widget preferences: %w", err)
	}
	return prefs, nil
}
