// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

// Package metrics declares the Prometheus metrics exported by Weekline.
//
// All metrics are registered on the default registry via promauto and are
// served by the admin API at /metrics. Components record through the
// Record*/Set* helpers rather than touching collectors directly.
package metrics
