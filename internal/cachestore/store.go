// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package cachestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/freshness"
	"github.com/tomtom215/weekline/internal/logging"
	"github.com/tomtom215/weekline/internal/metrics"
	"github.com/tomtom215/weekline/internal/models"
)

// maxConflictRetries bounds retries of a write that lost an optimistic
// transaction race on the timestamp key.
const maxConflictRetries = 5

// Stats contains cache store counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	DecodeErrors  int64 `json:"decode_errors"`
	Writes        int64 `json:"writes"`
	WriteFailures int64 `json:"write_failures"`
	Clears        int64 `json:"clears"`
	Periods       int   `json:"periods"`
}

// Store is the durable widget goal cache. Each period is stored as two keys,
// goals_{week}_{year} and timestamp_goals_{week}_{year}, written together in
// one BadgerDB transaction so readers never observe a torn entry.
//
// Store never returns errors from its read/write path: it is a best-effort
// durability layer, not a source of truth.
type Store struct {
	db     *badger.DB
	ownsDB bool
	cfg    config.CacheConfig
	now    func() time.Time
	logger zerolog.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	decodeErrors  atomic.Int64
	writes        atomic.Int64
	writeFailures atomic.Int64
	clears        atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// OpenDB opens (or creates) the BadgerDB database described by cfg. The same
// database also backs widget state and migration state.
func OpenDB(cfg config.CacheConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrNoPath
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts.SyncWrites = cfg.SyncWrites
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	} else {
		opts.Compression = options.None
	}

	// Badger's own logger is too chatty for a widget cache.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return db, nil
}

// Open opens a BadgerDB database and returns a Store that owns it.
func Open(cfg config.CacheConfig, opts ...Option) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	s := New(db, cfg, opts...)
	s.ownsDB = true

	s.logger.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Widget cache opened")
	return s, nil
}

// OpenInMemory returns a Store over a fresh in-memory database.
func OpenInMemory(opts ...Option) (*Store, error) {
	cfg := config.DefaultConfig().Cache
	cfg.InMemory = true
	cfg.Path = ""
	return Open(cfg, opts...)
}

// New wraps an already open database. The caller keeps ownership of db.
func New(db *badger.DB, cfg config.CacheConfig, opts ...Option) *Store {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = freshness.DefaultMaxAge
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}
	s := &Store{
		db:     db,
		cfg:    cfg,
		now:    time.Now,
		logger: logging.WithComponent("cachestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Store) DB() *badger.DB {
	return s.db
}

// MaxAge returns the configured freshness threshold.
func (s *Store) MaxAge() time.Duration {
	return s.cfg.MaxAge
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ReadSync returns the cached goals for period. It never blocks on the
// network and never fails: a missing key or an undecodable payload yields an
// empty slice.
func (s *Store) ReadSync(period models.Period) []models.GoalSnapshot {
	entry, ok := s.Entry(period)
	if !ok {
		return []models.GoalSnapshot{}
	}
	return entry.Items
}

// Entry returns the cached entry for period and whether one exists.
func (s *Store) Entry(period models.Period) (models.CacheEntry, bool) {
	if s.isClosed() {
		return models.CacheEntry{}, false
	}

	var (
		payload []byte
		ts      int64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(period.Key()))
		if err != nil {
			return err
		}
		if payload, err = item.ValueCopy(nil); err != nil {
			return err
		}
		ts, err = readTimestamp(txn, period)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.misses.Add(1)
		metrics.RecordCacheRead("miss")
		return models.CacheEntry{}, false
	}
	if err != nil {
		s.misses.Add(1)
		metrics.RecordCacheRead("miss")
		s.logger.Warn().Err(err).Str("period", period.Key()).Msg("Cache read failed")
		return models.CacheEntry{}, false
	}

	var items []models.GoalSnapshot
	if err := json.Unmarshal(payload, &items); err != nil {
		s.decodeErrors.Add(1)
		metrics.RecordCacheRead("decode_error")
		s.logger.Warn().Err(err).Str("period", period.Key()).Msg("Discarding undecodable cache entry")
		return models.CacheEntry{}, false
	}
	if items == nil {
		items = []models.GoalSnapshot{}
	}

	s.hits.Add(1)
	metrics.RecordCacheRead("hit")
	return models.CacheEntry{Period: period, Items: items, CachedAtEpochMs: ts}, true
}

// WriteSync replaces the entry for period with items and the current time.
// The stored timestamp never moves backwards for a key. Persistence errors
// are logged and swallowed.
func (s *Store) WriteSync(period models.Period, items []models.GoalSnapshot) {
	if err := s.write(period, items, s.now().UnixMilli()); err != nil {
		s.writeFailures.Add(1)
		metrics.RecordCacheWrite(err)
		s.logger.Warn().Err(err).Str("period", period.Key()).Msg("Cache write failed")
		return
	}
	s.writes.Add(1)
	metrics.RecordCacheWrite(nil)
}

// WriteAt is WriteSync with an explicit timestamp. The migration guard uses
// it to carry legacy cache timestamps forward.
func (s *Store) WriteAt(period models.Period, items []models.GoalSnapshot, at time.Time) error {
	err := s.write(period, items, at.UnixMilli())
	metrics.RecordCacheWrite(err)
	if err != nil {
		s.writeFailures.Add(1)
		return err
	}
	s.writes.Add(1)
	return nil
}

func (s *Store) write(period models.Period, items []models.GoalSnapshot, tsMillis int64) error {
	if s.isClosed() {
		return ErrClosed
	}
	if items == nil {
		items = []models.GoalSnapshot{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal goals: %w", err)
	}

	key := []byte(period.Key())
	tsKey := []byte(period.TimestampKey())

	for attempt := 1; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			prev, err := readTimestamp(txn, period)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			ts := tsMillis
			if prev > ts {
				ts = prev
			}
			if err := txn.Set(key, payload); err != nil {
				return err
			}
			return txn.Set(tsKey, encodeTimestamp(ts))
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", period.Key(), err)
	}
	return nil
}

// IsFresh reports whether period has an entry younger than maxAge.
func (s *Store) IsFresh(period models.Period, maxAge time.Duration) bool {
	ts, ok := s.Timestamp(period)
	if !ok {
		return false
	}
	return freshness.IsUsable(ts, s.now(), maxAge)
}

// Timestamp returns when period was last written.
func (s *Store) Timestamp(period models.Period) (time.Time, bool) {
	if s.isClosed() {
		return time.Time{}, false
	}
	var ts int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ts, err = readTimestamp(txn, period)
		return err
	})
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ts), true
}

// Clear drops every cached period.
func (s *Store) Clear() {
	if s.isClosed() {
		return
	}
	err := s.db.DropPrefix([]byte(models.PeriodKeyPrefix), []byte(models.TimestampKeyPrefix+models.PeriodKeyPrefix))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache clear failed")
		return
	}
	s.clears.Add(1)
	metrics.CacheClears.Inc()
	s.logger.Info().Msg("Widget cache cleared")
}

// Periods lists every cached period, newest first.
func (s *Store) Periods() []models.Period {
	if s.isClosed() {
		return nil
	}
	var periods []models.Period
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(models.PeriodKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			p, err := models.ParsePeriodKey(string(it.Item().Key()))
			if err != nil {
				continue
			}
			periods = append(periods, p)
		}
		return nil
	})
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year > periods[j].Year
		}
		return periods[i].WeekOfYear > periods[j].WeekOfYear
	})
	return periods
}

// Trim removes every cached period not listed in keep and returns how many
// were removed.
func (s *Store) Trim(keep []models.Period) int {
	keepSet := make(map[models.Period]struct{}, len(keep))
	for _, p := range keep {
		keepSet[p] = struct{}{}
	}

	var drop []models.Period
	for _, p := range s.Periods() {
		if _, ok := keepSet[p]; !ok {
			drop = append(drop, p)
		}
	}
	if len(drop) == 0 {
		return 0
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, p := range drop {
		if err := wb.Delete([]byte(p.Key())); err != nil {
			s.logger.Warn().Err(err).Msg("Cache trim failed")
			return 0
		}
		if err := wb.Delete([]byte(p.TimestampKey())); err != nil {
			s.logger.Warn().Err(err).Msg("Cache trim failed")
			return 0
		}
	}
	if err := wb.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("Cache trim failed")
		return 0
	}

	s.logger.Info().Int("removed", len(drop)).Msg("Widget cache trimmed")
	return len(drop)
}

// Stats returns cache counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
		Writes:        s.writes.Load(),
		WriteFailures: s.writeFailures.Load(),
		Clears:        s.clears.Load(),
		Periods:       len(s.Periods()),
	}
}

// RunGC runs value log garbage collection until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if s.isClosed() {
		return ErrClosed
	}

	start := time.Now()
	defer func() {
		metrics.CacheGCDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close marks the store closed and closes the database if the store owns it.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if !s.ownsDB {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	s.logger.Info().Msg("Widget cache closed")
	return nil
}

func readTimestamp(txn *badger.Txn, period models.Period) (int64, error) {
	item, err := txn.Get([]byte(period.TimestampKey()))
	if err != nil {
		return 0, err
	}
	var ts int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return ErrCorruptTimestamp
		}
		ts = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return ts, err
}

func encodeTimestamp(ms int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ms))
	return buf
}
