package main

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeygenCommand(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "keygen", "--count", "2")
	output, err := cmd.Output()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	assert.Len(t, lines, 2)
}

func TestKeygenCommand_InvalidCount(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "keygen", "--count", "0")
	output, err := cmd.CombinedOutput()

	assert.Error(t, err)
	assert.Contains(t, string(output), "count must be at least 1")
}

func TestExportCommand_MissingKeyFlag(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "export")
	output, err := cmd.CombinedOutput()

	assert.Error(t, err)
	assert.Contains(t, string(output), "required flag(s) \"key\" not set")
}

func TestInspectCommand_MissingKeyFlag(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "inspect")
	output, err := cmd.CombinedOutput()

	assert.Error(t, err)
	assert.Contains(t, string(output), "required flag(s) \"key\" not set")
}

func TestInspectCommand_UnknownKey(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "inspect", "--key", "ABCDEFGHJKMN", "--storage", "memory")
	output, err := cmd.CombinedOutput()

	assert.Error(t, err)
	assert.Contains(t, string(output), "no record found")
}
