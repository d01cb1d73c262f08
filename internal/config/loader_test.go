package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsPathIn(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), SettingsFileName)
}

// TestLoader_Load_MissingFile tests that a missing settings file yields the
// defaults instead of an error.
func TestLoader_Load_MissingFile(t *testing.T) {
	loader := NewLoader(settingsPathIn(t))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Engine.Provider)
	assert.NotEmpty(t, cfg.Logging.File)
	assert.NotEmpty(t, cfg.History.Path)
}

// TestLoader_SaveAndLoad tests a settings round trip.
func TestLoader_SaveAndLoad(t *testing.T) {
	path := settingsPathIn(t)
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Engine.Provider = "openai"
	cfg.Engine.Model = "gpt-4-turbo"
	cfg.Engine.APIKey = "sk-test"
	cfg.Permissions.AutoApproveWrites = true
	cfg.Permissions.CommandAllowlist = []string{"daily-note", "rebuild-index"}
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.Engine.Provider)
	assert.Equal(t, "gpt-4-turbo", loaded.Engine.Model)
	assert.True(t, loaded.Permissions.AutoApproveWrites)
	assert.Equal(t, []string{"daily-note", "rebuild-index"}, loaded.Permissions.CommandAllowlist)
}

// TestLoader_Load_SchemaViolation tests that a structurally invalid file is
// rejected rather than partially applied.
func TestLoader_Load_SchemaViolation(t *testing.T) {
	path := settingsPathIn(t)
	bad := `{"engine": {"provider": "carrier-pigeon"}, "bridge": {"port": 99999}}`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

// TestLoader_Load_MalformedJSON tests that broken JSON is an error.
func TestLoader_Load_MalformedJSON(t *testing.T) {
	path := settingsPathIn(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

// TestLoader_Load_PartialFileKeepsDefaults tests that omitted keys fall back
// to defaults.
func TestLoader_Load_PartialFileKeepsDefaults(t *testing.T) {
	path := settingsPathIn(t)
	partial := `{"engine": {"provider": "anthropic", "model": "claude-opus-4"}}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4", cfg.Engine.Model)
	assert.True(t, cfg.Permissions.RequireShellApproval)
	assert.Equal(t, 30, cfg.History.RetentionDays)
}
