package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 1000, cfg.Watch.DebounceMs)
	assert.Equal(t, 10, cfg.Retrieval.TopNDefault)
	assert.Equal(t, 5, cfg.Retrieval.OversampleFactor)
	assert.Equal(t, 30000, cfg.Retrieval.QueryTimeoutMs)
	assert.Equal(t, ".data/index.db", cfg.Store.Path)
}

func TestLoad_NoFilePresentReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".data"), 0o755))
	toml := "[watch]\nenabled = false\ndebounce_ms = 2000\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".data", "config.toml"), []byte(toml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 2000, cfg.Watch.DebounceMs)
	assert.Equal(t, 10, cfg.Retrieval.TopNDefault)
}

func TestLoad_UnknownKeyIsInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".data"), 0o755))
	toml := "[watch]\nnonexistent_key = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".data", "config.toml"), []byte(toml), 0o644))

	_, err := Load(root)
	require.Error(t, err)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".config", "ragrep"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".config", "ragrep", "config.yaml"),
		[]byte("retrieval:\n  top_n_default: 25\n"), 0o644))

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".data"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, ".data", "config.toml"),
		[]byte("[retrieval]\ntop_n_default = 40\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Retrieval.TopNDefault)
}
