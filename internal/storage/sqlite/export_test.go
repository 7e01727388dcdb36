package sqlite

import (
	"context"
	"time"
)

// putRaw plants an already-encoded payload, bypassing validation.
func (s *Store) putRaw(ctx context.Context, key, data string) error {
	now := toMillis(time.Now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO workshop_users (key, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		key, data, now, now,
	)
	return err
}
