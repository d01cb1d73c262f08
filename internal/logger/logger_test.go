package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_FileOutput tests that log lines reach the configured file.
func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vaultpilot.log")

	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Str("component", "test").Msg("hello from the test")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the test")
	assert.Contains(t, string(data), `"component":"test"`)
}

// TestNew_LevelFiltering tests that lines below the level are dropped.
func TestNew_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultpilot.log")

	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Msg("too quiet to log")
	zl.Warn().Msg("loud enough")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "too quiet to log")
	assert.Contains(t, string(data), "loud enough")
}

// TestNew_InvalidLevelFallsBack tests that an unknown level defaults to info.
func TestNew_InvalidLevelFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultpilot.log")

	l, err := New(Config{Level: "shouting", File: path})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Msg("info passes")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "info passes")
}

// TestNew_RedactionInPipeline tests that credentials never reach the file.
func TestNew_RedactionInPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultpilot.log")

	l, err := New(Config{Level: "info", File: path, Redaction: true})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Str("key", "sk-ant-REDACTED").Msg("configured engine")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-ant-REDACTED")
	assert.Contains(t, string(data), "[REDACTED]")
}
