// Package storage persists user records behind a backend-neutral Store and exposes
// the silent Gateway used by activity controllers.
package storage

import (
	"context"
	"errors"

	"github.com/jonathan/problem-workshop/internal/types"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

// Store is implemented by every storage backend.
// Get returns nil, nil when no record exists for key.
type Store interface {
	Get(ctx context.Context, key string) (*types.UserRecord, error)
	Put(ctx context.Context, key string, record *types.UserRecord) error
	Close() error
}
