// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package api serves the admin HTTP API of the widget daemon.

Routes (chi):

	POST /api/v1/events                              notify a goal data change
	GET  /api/v1/widgets/{id}                        widget state and current view
	POST /api/v1/widgets/{id}/navigate/{direction}   previous, next or current week
	POST /api/v1/refresh                             force refresh every widget
	POST /api/v1/reset                               reset all widget data
	GET  /api/v1/health                              widget system health
	PUT  /api/v1/device                              flip network, session or battery signals
	GET  /metrics                                    Prometheus metrics

Every response uses the models.APIResponse envelope. Mutating routes are
rate limited per client IP with go-chi/httprate unless disabled in config.
*/
package api
