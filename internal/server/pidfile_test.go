package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_AcquireThenReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")

	p1 := newPIDFile(path)
	acquired, err := p1.acquire()
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, p1.release())

	p2 := newPIDFile(path)
	acquired, err = p2.acquire()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, p2.release())
}

func TestPIDFile_SecondAcquireFailsWhileFirstHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")

	p1 := newPIDFile(path)
	acquired, err := p1.acquire()
	require.NoError(t, err)
	require.True(t, acquired)
	defer p1.release()

	p2 := newPIDFile(path)
	acquired, err = p2.acquire()
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestPIDFile_WritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	p := newPIDFile(path)
	acquired, err := p.acquire()
	require.NoError(t, err)
	require.True(t, acquired)
	defer p.release()

	owner, err := readOwnerPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner)
	assert.True(t, pidIsAlive(owner))
}

func TestRemoveStaleSocket_NoopWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.sock")
	assert.NoError(t, removeStaleSocket(path))
}
