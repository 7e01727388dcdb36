package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/observability"
	"github.com/jonathan/problem-workshop/internal/types"
)

// Gateway wraps a Store with the silent load/save contract used by controllers:
// failures are logged and reported as "absent" or false, never returned.
type Gateway struct {
	store  Store
	logger *zap.Logger
}

// NewGateway creates a Gateway over store. A nil logger discards log output.
func NewGateway(store Store, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: store, logger: logger}
}

// Load returns the record stored under key. Read or parse failures are logged and
// reported as absent.
func (g *Gateway) Load(ctx context.Context, key string) (*types.UserRecord, bool) {
	record, err := g.store.Get(ctx, key)
	if err != nil {
		observability.RecordStorageOp("load", observability.ResultError)
		g.logger.Warn("failed to load user record", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if record == nil {
		observability.RecordStorageOp("load", observability.ResultAbsent)
		return nil, false
	}
	observability.RecordStorageOp("load", observability.ResultOK)
	return record, true
}

// Save writes record under key and reports whether the write succeeded.
func (g *Gateway) Save(ctx context.Context, key string, record *types.UserRecord) bool {
	if err := g.store.Put(ctx, key, record); err != nil {
		observability.RecordStorageOp("save", observability.ResultError)
		g.logger.Error("failed to save user record", zap.String("key", key), zap.Error(err))
		return false
	}
	observability.RecordStorageOp("save", observability.ResultOK)
	return true
}

// Lookup is the strict form of Load. It returns nil, nil when the record is absent
// and the underlying error when the read or decode fails.
func (g *Gateway) Lookup(ctx context.Context, key string) (*types.UserRecord, error) {
	record, err := g.store.Get(ctx, key)
	if err != nil {
		observability.RecordStorageOp("lookup", observability.ResultError)
		return nil, fmt.Errorf("failed to look up record %s: %w", key, err)
	}
	if record == nil {
		observability.RecordStorageOp("lookup", observability.ResultAbsent)
		return nil, nil
	}
	observability.RecordStorageOp("lookup", observability.ResultOK)
	return record, nil
}

// Close closes the underlying store.
func (g *Gateway) Close() error {
	return g.store.Close()
}
