// Package sqlite stores user records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
)

const schema = `CREATE TABLE IF NOT EXISTS workshop_users (
	key TEXT PRIMARY KEY,
	email TEXT,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Store provides SQLite-backed persistence for user records.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path, creating the table if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	// modernc applies each _pragma to every new connection.
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create workshop_users table: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Get returns the record stored under key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key string) (*types.UserRecord, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM workshop_users WHERE key = ?`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user record: %w", err)
	}
	return storage.Decode([]byte(data))
}

// Put upserts record under key.
func (s *Store) Put(ctx context.Context, key string, record *types.UserRecord) error {
	data, err := storage.Encode(record)
	if err != nil {
		return err
	}

	var email sql.NullString
	if record.UserProfile != nil && record.UserProfile.Email != "" {
		email = sql.NullString{String: record.UserProfile.Email, Valid: true}
	}
	now := toMillis(time.Now())

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO workshop_users (key, email, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET email = excluded.email, data = excluded.data, updated_at = excluded.updated_at`,
		key, email, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("put user record: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
