package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// FileSnapshotStore keeps one JSON file per tenant and kind. Unreadable
// state (a missing file, malformed JSON, a tenant-id mismatch inside the
// payload, an unknown future format version) reads as "no snapshot" so the
// engine falls back to a full sync rather than erroring.
type FileSnapshotStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileSnapshotStore creates the store, ensuring the directory exists.
func NewFileSnapshotStore(dir string, logger *zap.Logger) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &FileSnapshotStore{dir: dir, logger: logger}, nil
}

// Read loads the snapshot for a tenant and kind.
func (s *FileSnapshotStore) Read(ctx context.Context, kind model.RecordKind, tenantID string) (*model.Snapshot, error) {
	path := s.path(kind, tenantID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		s.logger.Warn("snapshot unreadable, treating as absent",
			zap.String("path", path), zap.Error(err))
		return nil, ErrNotFound
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn("snapshot malformed, treating as absent",
			zap.String("path", path), zap.Error(err))
		return nil, ErrNotFound
	}
	if snapshot.TenantID != tenantID {
		s.logger.Warn("snapshot tenant mismatch, treating as absent",
			zap.String("path", path),
			zap.String("expected", tenantID),
			zap.String("embedded", snapshot.TenantID))
		return nil, ErrNotFound
	}
	if snapshot.Version > model.SnapshotVersion {
		s.logger.Warn("snapshot written by a newer format, treating as absent",
			zap.String("path", path), zap.Int("version", snapshot.Version))
		return nil, ErrNotFound
	}

	return &snapshot, nil
}

// Write replaces the tenant's snapshot. The file is written to a temp name
// in the same directory and renamed into place, so a concurrent reader
// never observes a partial snapshot.
func (s *FileSnapshotStore) Write(ctx context.Context, snapshot *model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := s.path(snapshot.Kind, snapshot.TenantID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Ping verifies the directory is still writable.
func (s *FileSnapshotStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot path %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileSnapshotStore) Close() {}

func (s *FileSnapshotStore) path(kind model.RecordKind, tenantID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", kind, sanitize(tenantID)))
}

// sanitize keeps tenant ids filesystem-safe.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
