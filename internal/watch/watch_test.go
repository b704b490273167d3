package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DetectsFileChangeAndDebounces(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def a(): pass\n"), 0o644))

	w := New(root, 50*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def a(): return 1\n"), 0o644))

	select {
	case batch := <-w.Batches():
		assert.Contains(t, batch, "a.py")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestWatcher_IgnoresUnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	w := New(root, 50*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# hi\n"), 0o644))

	select {
	case batch := <-w.Batches():
		t.Fatalf("unexpected batch for ignored extension: %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_CoalescesRapidAddsIntoOneBatch(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.add("a.py")
	d.add("b.py")
	d.add("a.py")

	select {
	case batch := <-d.Output():
		assert.Len(t, batch, 2)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}
