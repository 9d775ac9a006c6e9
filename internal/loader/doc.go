// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
Package loader resolves the goals of a week for widget rendering.

Load walks a fallback chain and stops at the first success:

 1. Fresh cache (younger than the max age and non-empty), unless forced.
 2. Live repository fetch, bounded by the fetch timeout and written through
    to the cache.
 3. Expired cache, flagged stale.
 4. An error outcome carrying the classified ErrorKind.

Live fetches are deduplicated per period with singleflight, paced by a
token bucket and guarded by a circuit breaker that opens after consecutive
failures. While the breaker is open the repository is not called and the
fallback is served directly.
*/
package loader
