// Package main provides the entry point for ragrepd, the long-running
// search daemon (spec §4.7). It takes no flags beyond the project root:
// everything else is read from <root>/.data/config.toml (spec §1
// Non-goal: no CLI flag framework).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/laulauland/ragrep/configs"
	"github.com/laulauland/ragrep/internal/logutil"
	"github.com/laulauland/ragrep/internal/server"
)

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	if err := run(root); err != nil {
		fmt.Fprintln(os.Stderr, "ragrepd:", err)
		os.Exit(1)
	}
}

func run(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	dataDir := filepath.Join(absRoot, ".data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	cfg, err := configs.Load(absRoot)
	if err != nil {
		return err
	}

	logCfg := logutil.DefaultConfig(dataDir)
	logCfg.Level = cfg.Log.Level
	log, cleanup, err := logutil.Setup(logCfg)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(absRoot, cfg, log)
	return srv.Run(ctx)
}
