// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package cachestore

import "github.com/tomtom215/weekline/internal/models"

// WindowTrimmer releases cache space under memory pressure while keeping the
// current week and weeksBack previous weeks.
type WindowTrimmer struct {
	store     *Store
	weeksBack int
}

// NewWindowTrimmer returns a trimmer over store.
func NewWindowTrimmer(store *Store, weeksBack int) *WindowTrimmer {
	return &WindowTrimmer{store: store, weeksBack: weeksBack}
}

// TrimCache drops every period outside the refresh window.
func (t *WindowTrimmer) TrimCache() int {
	return t.store.Trim(models.CurrentAndPrevious(t.store.now(), t.weeksBack))
}

// ClearCache drops every cached period.
func (t *WindowTrimmer) ClearCache() {
	t.store.Clear()
}
