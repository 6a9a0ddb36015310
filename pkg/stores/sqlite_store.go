package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path of the database file.
	Path string `yaml:"path"`

	// Keep is the number of snapshots retained (default 10).
	Keep int `yaml:"keep" validate:"gte=0"`

	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SQLiteStore appends every saved snapshot to a table and keeps the newest
// Keep rows, so earlier registry states can be inspected or restored.
type SQLiteStore struct {
	db   *sql.DB
	path string
	keep int

	connMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.Keep == 0 {
		cfg.Keep = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path:            cfg.Path,
		keep:            cfg.Keep,
		connMaxLifetime: cfg.ConnMaxLifetime,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; the installer saves from a single goroutine.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(s.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Load returns the newest snapshot.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

// LoadByID returns the snapshot with the given id.
func (s *SQLiteStore) LoadByID(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE id = ?`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %d: %w", id, err)
	}
	return data, nil
}

// Save appends a snapshot and prunes all but the newest Keep rows in one
// transaction.
func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sum := sha256.Sum256(data)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (digest, size, data, created_at) VALUES (?, ?, ?, ?)`,
		hex.EncodeToString(sum[:]), len(data), data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)`,
		s.keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// History lists the stored snapshots, newest first.
func (s *SQLiteStore) History(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, digest, size, created_at FROM snapshots ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Digest, &info.Size, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return infos, nil
}
