package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/problem-workshop/internal/userkey"
)

var keygenCount int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate user codes",
	Long:  "Print freshly generated 12-character user codes, one per line, for handing out before a workshop.",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().IntVarP(&keygenCount, "count", "n", 1, "Number of codes to generate")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	keys, err := generateKeys(keygenCount)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), key)
	}
	return nil
}

// generateKeys returns n distinct user keys.
func generateKeys(n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", n)
	}
	seen := make(map[string]bool, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		key := userkey.Generate()
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}
