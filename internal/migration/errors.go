// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package migration

import "errors"

var (
	// ErrNoLegacyData is returned by Backup when no legacy file exists.
	ErrNoLegacyData = errors.New("no legacy widget data found")

	// ErrNoBackupDir is returned by Backup when no backup directory is set.
	ErrNoBackupDir = errors.New("backup directory is not configured")

	// ErrCorruptVersion marks a stored schema version that is not 8 bytes.
	ErrCorruptVersion = errors.New("corrupt migration version")
)
