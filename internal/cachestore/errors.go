// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package cachestore

import "errors"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache store is closed")

	// ErrNoPath is returned when a persistent store has no directory.
	ErrNoPath = errors.New("cache path is required unless in_memory is set")

	// ErrCorruptTimestamp marks a timestamp value that is not 8 bytes.
	ErrCorruptTimestamp = errors.New("corrupt cache timestamp")
)
