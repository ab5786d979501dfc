package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"jarvis/internal/models"

	"go.uber.org/zap"
)

// FileSnapshotRepository keeps the snapshot in a single JSON document on local disk.
type FileSnapshotRepository struct {
	path   string
	logger *zap.Logger
}

func NewFileSnapshotRepository(path string, logger *zap.Logger) *FileSnapshotRepository {
	return &FileSnapshotRepository{
		path:   path,
		logger: logger,
	}
}

func (r *FileSnapshotRepository) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", r.path, err)
	}
	return &snapshot, nil
}

// Save writes to a temporary file in the target directory, fsyncs it and renames it over
// the previous snapshot, so a reader never observes a partially written document.
func (r *FileSnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	success = true

	syncDir(dir)

	r.logger.Debug("Snapshot written",
		zap.String("path", r.path),
		zap.Int64("version", snapshot.Version),
		zap.Int("entries", len(snapshot.Entries)),
	)
	return nil
}

func (r *FileSnapshotRepository) Close() error {
	return nil
}

// syncDir makes the rename durable on filesystems that need a directory fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
