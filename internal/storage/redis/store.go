// Package redis stores user records as JSON strings in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
)

// DefaultPrefix is prepended to user keys when no prefix is configured.
const DefaultPrefix = "workshop_data_"

// Store keeps one string value per user key.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// Connect dials addr and verifies the connection with a ping.
func Connect(ctx context.Context, addr, prefix string) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(rdb, prefix), nil
}

// New wraps an existing client.
func New(rdb *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Get returns the record stored under key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key string) (*types.UserRecord, error) {
	raw, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return storage.Decode(raw)
}

// Put stores record under key without expiry.
func (s *Store) Put(ctx context.Context, key string, record *types.UserRecord) error {
	data, err := storage.Encode(record)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
