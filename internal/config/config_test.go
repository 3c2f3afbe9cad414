package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, defaultRegistry, cfg.NpmRegistry)
	assert.Equal(t, defaultMaxParallel, cfg.MaxParallel)
	assert.Contains(t, cfg.IPCEndpoint, "howth-abc123")
}

func TestLoadFileOverride(t *testing.T) {
	dir := t.TempDir()
	content := "{\n  // comment\n  \"npm_registry\": \"https://registry.example.com\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644))

	cfg, err := Load(dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://registry.example.com", cfg.NpmRegistry)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvNpmRegistry, "https://registry.env.example.com")

	cfg, err := Load(dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://registry.env.example.com", cfg.NpmRegistry)
}
