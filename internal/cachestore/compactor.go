// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/weekline/internal/models"
)

// Compactor periodically drops cached periods that fell out of the refresh
// window and runs BadgerDB value log garbage collection.
type Compactor struct {
	store     *Store
	interval  time.Duration
	weeksBack int

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool

	// Stats
	lastRun     time.Time
	lastTrimmed int
}

// CompactorStats contains statistics about compaction.
type CompactorStats struct {
	LastRun     time.Time `json:"last_run"`
	LastTrimmed int       `json:"last_trimmed"`
}

// NewCompactor creates a compactor that keeps the current week plus
// weeksBack previous weeks.
func NewCompactor(store *Store, interval time.Duration, weeksBack int) *Compactor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Compactor{
		store:     store,
		interval:  interval,
		weeksBack: weeksBack,
	}
}

// Start begins the background compaction loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	c.store.logger.Info().Dur("interval", c.interval).Msg("Cache compactor started")
	return nil
}

// Stop stops the compaction loop and waits for it to exit.
func (c *Compactor) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	c.store.logger.Info().Msg("Cache compactor stopped")
	return nil
}

// IsRunning returns whether the compactor is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.RunNow()
		}
	}
}

// RunNow trims out-of-window periods and runs GC immediately.
func (c *Compactor) RunNow() CompactorStats {
	keep := models.CurrentAndPrevious(c.store.now(), c.weeksBack)
	trimmed := c.store.Trim(keep)

	if err := c.store.RunGC(); err != nil {
		c.store.logger.Error().Err(err).Msg("Cache GC failed")
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.lastTrimmed = trimmed
	stats := CompactorStats{LastRun: c.lastRun, LastTrimmed: trimmed}
	c.mu.Unlock()
	return stats
}

// Stats returns the last compaction result.
func (c *Compactor) Stats() CompactorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CompactorStats{LastRun: c.lastRun, LastTrimmed: c.lastTrimmed}
}
