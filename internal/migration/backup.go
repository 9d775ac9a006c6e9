// Weekline - Weekly Goal Widget Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/weekline

/*
backup.go - Legacy Data Backup

Archive Structure:

	weekline-legacy-{timestamp}.tar.gz
	├── legacy/
	│   ├── widget_goals_sync.json
	│   ├── widget_config.json
	│   └── widget_week_offsets.json
	└── backup-metadata.json (versions and checksums)

Files that do not exist are skipped. The archive is written to a temporary
name and renamed once complete.
*/

package migration

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/weekline/internal/metrics"
)

// BackupFile describes one archived legacy file.
type BackupFile struct {
	Path         string    `json:"path"`
	OriginalPath string    `json:"original_path"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mod_time"`
	Checksum     string    `json:"checksum"`
}

// BackupMetadata is stored as backup-metadata.json in every archive.
type BackupMetadata struct {
	CreatedAt     time.Time    `json:"created_at"`
	SchemaVersion int          `json:"schema_version"`
	TargetVersion int          `json:"target_version"`
	Files         []BackupFile `json:"files"`
}

// BackupResult is the outcome of Backup.
type BackupResult struct {
	Success  bool           `json:"success"`
	Path     string         `json:"path,omitempty"`
	Metadata BackupMetadata `json:"metadata"`
	Message  string         `json:"message"`
	Err      error          `json:"-"`
}

type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

//nolint:gosec // G304: path is derived from the configured backup directory
func setupArchiveWriters(path string) (*archiveWriters, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	return &archiveWriters{
		tarWriter: tw,
		closers:   []io.Closer{out, gz, tw},
	}, nil
}

// Backup archives the legacy files into the backup directory.
func (g *Guard) Backup(ctx context.Context) BackupResult {
	status := g.MigrationStatus()
	meta := BackupMetadata{
		CreatedAt:     g.now().UTC(),
		SchemaVersion: status.CurrentVersion,
		TargetVersion: status.TargetVersion,
	}

	result, err := g.backup(ctx, &meta)
	if errors.Is(err, ErrNoLegacyData) {
		return BackupResult{Metadata: meta, Message: "Nothing to back up", Err: err}
	}
	if err != nil {
		g.logger.Warn().Err(err).Msg("Legacy data backup failed")
		metrics.RecordMigrationPhase("backup", false)
		return BackupResult{Metadata: meta, Message: "Backup failed: " + err.Error(), Err: err}
	}
	metrics.RecordMigrationPhase("backup", true)
	g.logger.Info().Str("path", result.Path).Int("files", len(meta.Files)).Msg("Legacy data backed up")
	return result
}

func (g *Guard) backup(ctx context.Context, meta *BackupMetadata) (BackupResult, error) {
	if !g.hasLegacyData() {
		return BackupResult{}, ErrNoLegacyData
	}
	if g.cfg.BackupDir == "" {
		return BackupResult{}, ErrNoBackupDir
	}
	if err := os.MkdirAll(g.cfg.BackupDir, 0o750); err != nil {
		return BackupResult{}, fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("weekline-legacy-%s.tar.gz", meta.CreatedAt.Format("20060102-150405.000"))
	final := filepath.Join(g.cfg.BackupDir, name)
	tmp := final + ".tmp"

	if err := g.writeArchive(ctx, tmp, meta); err != nil {
		_ = os.Remove(tmp)
		return BackupResult{}, err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return BackupResult{}, fmt.Errorf("finalize backup: %w", err)
	}

	return BackupResult{
		Success:  true,
		Path:     final,
		Metadata: *meta,
		Message:  fmt.Sprintf("Backed up %d legacy files", len(meta.Files)),
	}, nil
}

func (g *Guard) writeArchive(ctx context.Context, path string, meta *BackupMetadata) (err error) {
	aw, err := setupArchiveWriters(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := aw.Close(); err == nil {
			err = closeErr
		}
	}()

	for _, name := range LegacyFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := g.legacyPath(name)
		if _, statErr := os.Stat(src); statErr != nil {
			continue
		}
		file, err := addFileToArchive(aw.tarWriter, src, "legacy/"+name)
		if err != nil {
			return err
		}
		meta.Files = append(meta.Files, file)
	}

	return addMetadataToArchive(aw.tarWriter, meta)
}

//nolint:gosec // G304: srcPath is one of the fixed legacy file names
func addFileToArchive(tw *tar.Writer, srcPath, destPath string) (BackupFile, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return BackupFile{}, fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return BackupFile{}, fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return BackupFile{}, fmt.Errorf("failed to create tar header for %s: %w", srcPath, err)
	}
	header.Name = destPath

	if err := tw.WriteHeader(header); err != nil {
		return BackupFile{}, fmt.Errorf("failed to write tar header for %s: %w", srcPath, err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tw, hasher), f); err != nil {
		return BackupFile{}, fmt.Errorf("failed to copy %s: %w", srcPath, err)
	}

	return BackupFile{
		Path:         destPath,
		OriginalPath: srcPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func addMetadataToArchive(tw *tar.Writer, meta *BackupMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}

	header := &tar.Header{
		Name:    "backup-metadata.json",
		Size:    int64(len(data)),
		Mode:    0o640,
		ModTime: meta.CreatedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
