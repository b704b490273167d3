package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	w, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := NewRotatingWriter(path, 10, 5)
	require.NoError(t, err)
	_, err = w2.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestRotatingWriter_RotatesPastMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	w, err := NewRotatingWriter(path, 0, 3)
	require.NoError(t, err)
	w.maxSize = 10

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("next"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(rotated))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "next", string(current))
}

func TestRotatingWriter_PrunesBeyondMaxFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	w.maxSize = 1

	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	require.FileExists(t, path+".1")
	require.FileExists(t, path+".2")
	require.NoFileExists(t, path+".3")
}
