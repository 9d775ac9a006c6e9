// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tomtom215/weekline/internal/models"
)

var (
	// ErrUnauthenticated is wrapped by repositories when the user session is
	// missing or expired.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrNetwork is wrapped by repositories on transport failures.
	ErrNetwork = errors.New("network unavailable")
)

// Repository is the authoritative goal source.
type Repository interface {
	GetAllGoalsSync(ctx context.Context) ([]models.DomainGoal, error)
	GetGoalsByWeek(ctx context.Context, week, year int) ([]models.DomainGoal, error)
}

// Connectivity reports whether the network is usable.
type Connectivity interface {
	IsNetworkAvailable() bool
}

// Auth reports whether a user is signed in.
type Auth interface {
	IsSignedIn() bool
}

// Cache is the subset of the cache store the loader uses.
type Cache interface {
	ReadSync(period models.Period) []models.GoalSnapshot
	WriteSync(period models.Period, items []models.GoalSnapshot)
	Entry(period models.Period) (models.CacheEntry, bool)
}

// StateReader resolves a widget's persisted state and clears its shown error.
type StateReader interface {
	Get(widgetID int) (models.WidgetRuntimeState, error)
	ClearError(widgetID int) error
}

// Device is a switchable stand-in for the host's connectivity, session and
// battery signals. It satisfies Connectivity, Auth and the scheduler's
// device conditions.
type Device struct {
	network   atomic.Bool
	signedIn  atomic.Bool
	batteryOK atomic.Bool
	changed   atomic.Int64
}

// NewDevice returns a Device with the given initial signals and a healthy
// battery.
func NewDevice(networkAvailable, signedIn bool) *Device {
	d := &Device{}
	d.network.Store(networkAvailable)
	d.signedIn.Store(signedIn)
	d.batteryOK.Store(true)
	d.changed.Store(time.Now().UnixMilli())
	return d
}

func (d *Device) IsNetworkAvailable() bool { return d.network.Load() }
func (d *Device) IsSignedIn() bool         { return d.signedIn.Load() }
func (d *Device) IsBatteryOK() bool        { return d.batteryOK.Load() }

// SetNetworkAvailable flips the connectivity signal.
func (d *Device) SetNetworkAvailable(v bool) {
	d.network.Store(v)
	d.changed.Store(time.Now().UnixMilli())
}

// SetSignedIn flips the session signal.
func (d *Device) SetSignedIn(v bool) {
	d.signedIn.Store(v)
	d.changed.Store(time.Now().UnixMilli())
}

// SetBatteryOK flips the battery signal.
func (d *Device) SetBatteryOK(v bool) {
	d.batteryOK.Store(v)
	d.changed.Store(time.Now().UnixMilli())
}

// ChangedAt returns when a signal last changed.
func (d *Device) ChangedAt() time.Time {
	return time.UnixMilli(d.changed.Load())
}
