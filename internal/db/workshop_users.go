package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
)

// Get retrieves the record stored under key. Returns nil, nil when there is none.
func (db *DB) Get(ctx context.Context, key string) (*types.UserRecord, error) {
	var data []byte
	err := db.pool.QueryRow(ctx,
		`SELECT data FROM workshop_users WHERE key = $1`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}
	return storage.Decode(data)
}

// Put inserts or replaces the record stored under key.
func (db *DB) Put(ctx context.Context, key string, record *types.UserRecord) error {
	data, err := storage.Encode(record)
	if err != nil {
		return err
	}

	var email *string
	if record.UserProfile != nil && record.UserProfile.Email != "" {
		email = &record.UserProfile.Email
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO workshop_users (key, email, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET email = $2, data = $3, updated_at = NOW()`,
		key, email, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save user record: %w", err)
	}
	return nil
}

// ListKeys returns every stored user key in insertion order.
func (db *DB) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT key FROM workshop_users ORDER BY created_at, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan user key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

var _ storage.Store = (*DB)(nil)
