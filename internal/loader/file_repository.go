// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/weekline/internal/models"
)

// JSONFileRepository reads goals from a JSON array of DomainGoal on disk.
// A missing file holds no goals.
type JSONFileRepository struct {
	path string
	mu   sync.RWMutex
}

// NewJSONFileRepository returns a repository backed by path.
func NewJSONFileRepository(path string) *JSONFileRepository {
	return &JSONFileRepository{path: path}
}

// GetAllGoalsSync returns every goal in the file.
func (r *JSONFileRepository) GetAllGoalsSync(ctx context.Context) ([]models.DomainGoal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.DomainGoal{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read goals file: %w", err)
	}

	var goals []models.DomainGoal
	if err := json.Unmarshal(data, &goals); err != nil {
		return nil, fmt.Errorf("decode goals file: %w", err)
	}
	return goals, nil
}

// GetGoalsByWeek returns the goals created in the given ISO week.
func (r *JSONFileRepository) GetGoalsByWeek(ctx context.Context, week, year int) ([]models.DomainGoal, error) {
	all, err := r.GetAllGoalsSync(ctx)
	if err != nil {
		return nil, err
	}
	p := models.Period{WeekOfYear: week, Year: year}
	out := make([]models.DomainGoal, 0, len(all))
	for i := range all {
		if all[i].InPeriod(p) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Save replaces the file contents with goals.
func (r *JSONFileRepository) Save(goals []models.DomainGoal) error {
	data, err := json.MarshalIndent(goals, "", "  ")
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create goals directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write goals file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace goals file: %w", err)
	}
	return nil
}
