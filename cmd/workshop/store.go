package main

import (
	"context"
	"fmt"

	"github.com/jonathan/problem-workshop/internal/config"
	"github.com/jonathan/problem-workshop/internal/db"
	"github.com/jonathan/problem-workshop/internal/storage"
	redisstore "github.com/jonathan/problem-workshop/internal/storage/redis"
	"github.com/jonathan/problem-workshop/internal/storage/sqlite"
)

// openStore connects the backend selected by cfg.Storage.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoragePostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to prepare database schema: %w", err)
		}
		return database, nil

	case config.StorageRedis:
		store, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}
