package stores

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotNotFound is returned by Load when no snapshot has been saved.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists encoded registry snapshots.
type SnapshotStore interface {
	// Load returns the newest snapshot.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, data []byte) error

	// Close releases the backend.
	Close() error
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID        int64     `json:"id"`
	Digest    string    `json:"digest"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config selects and configures a snapshot backend.
type Config struct {
	// Backend is one of "file", "sqlite" or "s3".
	Backend string `yaml:"backend" validate:"required,oneof=file sqlite s3"`

	File   FileConfig   `yaml:"file"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	S3     S3Config     `yaml:"s3"`
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg Config) (SnapshotStore, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.File.Path)
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		if err := s.Init(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
