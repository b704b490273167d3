package logutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_PointsAtServerLogUnderDataDir(t *testing.T) {
	cfg := DefaultConfig("/project/.data")
	assert.Equal(t, filepath.Join("/project/.data", "server.log"), cfg.FilePath)
	assert.Equal(t, "info", cfg.Level)
	assert.False(t, cfg.WriteToStderr)
}

func TestSetup_WritesJSONLinesToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("ready", slog.String("root", "/tmp/proj"))
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ready"`)
	assert.Contains(t, string(data), `"root":"/tmp/proj"`)
}

func TestSetup_LevelFiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Level = "warn"

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("should be dropped")
	logger.Warn("should appear")
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should appear")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input), "input=%q", input)
	}
}
