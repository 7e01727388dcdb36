package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
)

// getBinaryPath returns the path to the workshop binary for testing
func getBinaryPath(t *testing.T) string {
	binaryName := "workshop"
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", binaryName)
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/workshop ./cmd/workshop'", binaryPath)
	}

	return binaryPath
}

// seededGateway returns a gateway over a memory store holding records.
func seededGateway(t *testing.T, records ...*types.UserRecord) *storage.Gateway {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, rec := range records {
		require.NoError(t, store.Put(context.Background(), rec.Key, rec))
	}
	return storage.NewGateway(store, zap.NewNop())
}

func textAnswer(text string, minWords int) types.FieldValue {
	return types.TextValue(types.NewTextResponse(text, minWords, time.Now()))
}
