// Package logutil sets up the process-wide structured logger: a rotating
// JSON-lines file under the project's data directory, mirrored to stderr
// when Config.WriteToStderr is set.
package logutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config controls where and how verbosely the logger writes.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// FilePath is the server.log path, normally <project>/.data/server.log.
	FilePath string
	MaxSizeMB int
	MaxFiles  int
	// WriteToStderr additionally mirrors output to stderr, used in
	// interactive/CLI runs (not while daemonized).
	WriteToStderr bool
}

// DefaultConfig returns the defaults used when booting the server against
// dataDir (<project>/.data).
func DefaultConfig(dataDir string) Config {
	return Config{
		Level:     "info",
		FilePath:  filepath.Join(dataDir, "server.log"),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// Setup builds the *slog.Logger and returns a cleanup func that flushes
// and closes the underlying file; callers should defer it.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	logger := slog.New(handler)

	cleanup := func() {
		writer.Sync()
		writer.Close()
	}
	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
