package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laulauland/ragrep/configs"
)

func writeProjectFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func startTestServer(t *testing.T) (root string, socketPath string) {
	t.Helper()
	root = t.TempDir()
	writeProjectFile(t, root, "main.py", "def handle_request(req):\n    return req.id\n")

	cfg := configs.Default()
	cfg.Watch.Enabled = false
	srv := New(root, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	socketPath = filepath.Join(root, ".data", "server.sock")
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return root, socketPath
}

func TestServer_Run_CreatesSocketAndPIDFile(t *testing.T) {
	root, socketPath := startTestServer(t)
	_, err := os.Stat(socketPath)
	assert.NoError(t, err)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(root, ".data", "server.pid"))
	assert.NoError(t, err)
}

func TestServer_Run_SecondInstanceIsBusy(t *testing.T) {
	root, _ := startTestServer(t)

	cfg := configs.Default()
	cfg.Watch.Enabled = false
	second := New(root, cfg, nil)
	err := second.Run(context.Background())
	require.Error(t, err)
}
