package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/problem-workshop/internal/userkey"
)

func TestGenerateKeys(t *testing.T) {
	keys, err := generateKeys(50)
	require.NoError(t, err)
	require.Len(t, keys, 50)

	seen := make(map[string]bool)
	for _, key := range keys {
		assert.True(t, userkey.Valid(key), "generated key %q should be valid", key)
		assert.False(t, seen[key], "duplicate key %q", key)
		seen[key] = true
	}
}

func TestGenerateKeys_InvalidCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := generateKeys(n)
		assert.Error(t, err)
	}
}

func TestRunKeygen_PrintsOnePerLine(t *testing.T) {
	prev := keygenCount
	t.Cleanup(func() { keygenCount = prev })
	keygenCount = 3

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, runKeygen(cmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, line, userkey.Length)
	}
}
