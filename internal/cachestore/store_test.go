// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package cachestore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/weekline/internal/config"
	"github.com/tomtom215/weekline/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	s, err := OpenInMemory(opts...)
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func goals(period models.Period, ids ...string) []models.GoalSnapshot {
	out := make([]models.GoalSnapshot, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.GoalSnapshot{
			ID:          id,
			Text:        "goal " + id,
			Status:      models.GoalStatusActive,
			WeekOfYear:  period.WeekOfYear,
			YearCreated: period.Year,
			Position:    i,
		})
	}
	return out
}

func TestReadSyncMissingReturnsEmpty(t *testing.T) {
	s := newTestStore(t, nil)

	got := s.ReadSync(models.Period{WeekOfYear: 50, Year: 2024})
	if got == nil {
		t.Fatal("ReadSync() returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("ReadSync() len = %d, want 0", len(got))
	}
	if s.Stats().Misses != 1 {
		t.Errorf("Misses = %d, want 1", s.Stats().Misses)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)}
	s := newTestStore(t, clock)
	p := models.Period{WeekOfYear: 50, Year: 2024}

	s.WriteSync(p, goals(p, "a", "b"))

	got := s.ReadSync(p)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("ReadSync() = %+v, want goals a,b", got)
	}

	entry, ok := s.Entry(p)
	if !ok {
		t.Fatal("Entry() ok = false")
	}
	if !entry.CachedAt().Equal(clock.Now()) {
		t.Errorf("CachedAt = %v, want %v", entry.CachedAt(), clock.Now())
	}
}

func TestWriteEmptyListIsStored(t *testing.T) {
	s := newTestStore(t, nil)
	p := models.Period{WeekOfYear: 1, Year: 2025}

	s.WriteSync(p, nil)

	if _, ok := s.Entry(p); !ok {
		t.Fatal("expected an entry for an empty write")
	}
	if !s.IsFresh(p, 30*time.Minute) {
		t.Error("empty write should still be fresh")
	}
}

func TestIsFresh(t *testing.T) {
	start := time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)
	p := models.Period{WeekOfYear: 50, Year: 2024}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"just written", 0, true},
		{"29 minutes", 29 * time.Minute, true},
		{"exactly max age", 30 * time.Minute, false},
		{"an hour", time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: start}
			s := newTestStore(t, clock)
			s.WriteSync(p, goals(p, "a"))

			clock.Set(start.Add(tt.elapsed))
			if got := s.IsFresh(p, 30*time.Minute); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFreshMissing(t *testing.T) {
	s := newTestStore(t, nil)
	if s.IsFresh(models.Period{WeekOfYear: 3, Year: 2025}, time.Hour) {
		t.Error("IsFresh() = true for a period never written")
	}
}

func TestTimestampNeverMovesBackwards(t *testing.T) {
	later := time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: later}
	s := newTestStore(t, clock)
	p := models.Period{WeekOfYear: 50, Year: 2024}

	s.WriteSync(p, goals(p, "a"))
	clock.Set(later.Add(-time.Hour))
	s.WriteSync(p, goals(p, "b"))

	entry, ok := s.Entry(p)
	if !ok {
		t.Fatal("Entry() ok = false")
	}
	if entry.Items[0].ID != "b" {
		t.Errorf("items not replaced: got %q", entry.Items[0].ID)
	}
	if !entry.CachedAt().Equal(later) {
		t.Errorf("CachedAt = %v, want %v", entry.CachedAt(), later)
	}
}

func TestUndecodableEntryReadsEmpty(t *testing.T) {
	s := newTestStore(t, nil)
	p := models.Period{WeekOfYear: 50, Year: 2024}

	err := s.DB().Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(p.Key()), []byte("{not json")); err != nil {
			return err
		}
		return txn.Set([]byte(p.TimestampKey()), encodeTimestamp(time.Now().UnixMilli()))
	})
	if err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if got := s.ReadSync(p); len(got) != 0 {
		t.Errorf("ReadSync() len = %d, want 0", len(got))
	}
	if s.Stats().DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", s.Stats().DecodeErrors)
	}
}

func TestConcurrentWritesNeverInterleave(t *testing.T) {
	s := newTestStore(t, nil)
	p := models.Period{WeekOfYear: 50, Year: 2024}

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			s.WriteSync(p, goals(p, id+"-1", id+"-2", id+"-3"))
		}(i)
	}
	wg.Wait()

	got := s.ReadSync(p)
	if len(got) != 3 {
		t.Fatalf("ReadSync() len = %d, want 3", len(got))
	}
	prefix := got[0].ID[:len(got[0].ID)-2]
	for _, g := range got {
		if g.ID[:len(g.ID)-2] != prefix {
			t.Fatalf("entry mixes writers: %+v", got)
		}
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, nil)
	p1 := models.Period{WeekOfYear: 49, Year: 2024}
	p2 := models.Period{WeekOfYear: 50, Year: 2024}
	s.WriteSync(p1, goals(p1, "a"))
	s.WriteSync(p2, goals(p2, "b"))

	s.Clear()

	if len(s.Periods()) != 0 {
		t.Errorf("Periods() after Clear = %v, want none", s.Periods())
	}
	if _, ok := s.Timestamp(p1); ok {
		t.Error("timestamp survived Clear")
	}
}

func TestPeriodsAndTrim(t *testing.T) {
	s := newTestStore(t, nil)
	periods := []models.Period{
		{WeekOfYear: 48, Year: 2024},
		{WeekOfYear: 2, Year: 2025},
		{WeekOfYear: 50, Year: 2024},
	}
	for _, p := range periods {
		s.WriteSync(p, goals(p, "x"))
	}

	got := s.Periods()
	want := []models.Period{{WeekOfYear: 2, Year: 2025}, {WeekOfYear: 50, Year: 2024}, {WeekOfYear: 48, Year: 2024}}
	if len(got) != len(want) {
		t.Fatalf("Periods() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Periods()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	removed := s.Trim([]models.Period{{WeekOfYear: 2, Year: 2025}})
	if removed != 2 {
		t.Errorf("Trim() = %d, want 2", removed)
	}
	if len(s.Periods()) != 1 {
		t.Errorf("Periods() after Trim = %v", s.Periods())
	}
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	p := models.Period{WeekOfYear: 1, Year: 2025}
	s.WriteSync(p, goals(p, "a"))
	if got := s.ReadSync(p); len(got) != 0 {
		t.Errorf("ReadSync() on closed store = %v", got)
	}
	if err := s.RunGC(); err != ErrClosed {
		t.Errorf("RunGC() error = %v, want ErrClosed", err)
	}
}

func TestOpenPersistentReopen(t *testing.T) {
	cfg := config.DefaultConfig().Cache
	cfg.Path = t.TempDir()
	p := models.Period{WeekOfYear: 50, Year: 2024}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.WriteSync(p, goals(p, "a"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if got := s.ReadSync(p); len(got) != 1 {
		t.Errorf("ReadSync() after reopen len = %d, want 1", len(got))
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	cfg := config.DefaultConfig().Cache
	cfg.Path = ""
	if _, err := Open(cfg); err != ErrNoPath {
		t.Errorf("Open() error = %v, want ErrNoPath", err)
	}
}

func TestCompactorRunNow(t *testing.T) {
	now := time.Date(2024, 12, 11, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	s := newTestStore(t, clock)

	current := models.PeriodOf(now)
	old := models.PeriodForOffset(now, -10)
	s.WriteSync(current, goals(current, "a"))
	s.WriteSync(old, goals(old, "b"))

	c := NewCompactor(s, time.Hour, 4)
	stats := c.RunNow()
	if stats.LastTrimmed != 1 {
		t.Errorf("LastTrimmed = %d, want 1", stats.LastTrimmed)
	}
	if len(s.ReadSync(current)) != 1 {
		t.Error("current week was trimmed")
	}
}

func TestCompactorStartStop(t *testing.T) {
	s := newTestStore(t, nil)
	c := NewCompactor(s, 10*time.Millisecond, 4)

	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	time.Sleep(30 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestOpenInMemoryKeepsConfig(t *testing.T) {
	cfg := config.DefaultConfig().Cache
	cfg.InMemory = true
	cfg.Path = ""
	cfg.MaxAge = 5 * time.Minute

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if got := s.MaxAge(); got != 5*time.Minute {
		t.Errorf("MaxAge() = %v, want 5m", got)
	}
	if !s.DB().Opts().InMemory {
		t.Error("database is not in memory")
	}
}
