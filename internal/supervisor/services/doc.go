// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package services adapts weekline components to suture.Service.

StartStopService wraps anything with Start(ctx) error and Stop() error: the
scheduler job host, the cache compactor and the broadcast listener.
HTTPServerService wraps *http.Server with graceful shutdown.

Every wrapper implements fmt.Stringer so suture can name it in events.
*/
package services
