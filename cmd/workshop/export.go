package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/problem-workshop/internal/storage"
	"github.com/jonathan/problem-workshop/internal/types"
	"github.com/jonathan/problem-workshop/internal/userkey"
)

// exportConcurrency bounds parallel lookups against the storage backend.
const exportConcurrency = 4

var (
	exportKeys       []string
	exportOutputFile string
	exportStorage    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored user records as JSON",
	Long:  "Look up one or more user codes and write their stored records as JSON. A single code is written as an object, several as an array.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringSliceVarP(&exportKeys, "key", "k", nil, "User code to export (repeatable, required)")
	exportCmd.Flags().StringVarP(&exportOutputFile, "out", "o", "", "Path to output JSON file (default stdout)")
	exportCmd.Flags().StringVar(&exportStorage, "storage", "", "Storage backend (overrides config)")

	if err := exportCmd.MarkFlagRequired("key"); err != nil {
		panic(fmt.Sprintf("failed to mark key flag as required: %v", err))
	}

	rootCmd.AddCommand(exportCmd)
}

// recordLookup finds stored records, distinguishing absent (nil, nil) from failures.
type recordLookup interface {
	Lookup(ctx context.Context, key string) (*types.UserRecord, error)
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(0, exportStorage)
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	gateway := storage.NewGateway(store, zap.NewNop())
	defer func() { _ = gateway.Close() }()

	records, err := exportRecords(cmd.Context(), gateway, exportKeys)
	if err != nil {
		return err
	}

	var payload any = records
	if len(records) == 1 {
		payload = records[0]
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	data = append(data, '\n')

	if exportOutputFile == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	// Ensure output directory exists
	outputDir := filepath.Dir(exportOutputFile)
	if outputDir != "" && outputDir != "." {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(exportOutputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d record(s) to %s\n", len(records), exportOutputFile)
	return nil
}

// exportRecords looks up every key concurrently, preserving the order of keys.
func exportRecords(ctx context.Context, lookup recordLookup, keys []string) ([]*types.UserRecord, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one key is required")
	}

	records := make([]*types.UserRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)

	for i, raw := range keys {
		g.Go(func() error {
			key := userkey.Normalize(raw)
			if !userkey.Valid(key) {
				return fmt.Errorf("invalid user code %q", raw)
			}
			record, err := lookup.Lookup(gctx, key)
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no record found for user code %s", key)
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
