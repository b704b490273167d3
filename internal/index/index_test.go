package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/embedrerank"
	"github.com/laulauland/ragrep/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, string, *store.Store) {
	t.Helper()
	root := t.TempDir()
	embedder := embedrerank.NewStaticEmbedder()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), embedder.ID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	t.Cleanup(func() { _ = embedder.Close() })

	ix := New(root, st, embedder, chunk.NewCodeChunker(), nil)
	return ix, root, st
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestIndexer_FullIndex_IndexesAllSupportedFiles(t *testing.T) {
	ix, root, st := newTestIndexer(t)
	writeFile(t, root, "a.py", "def f():\n    return 1\n")
	writeFile(t, root, "b.rs", "fn g() -> i32 { 1 }\n")
	writeFile(t, root, "c.md", "# not indexable\n")

	result, err := ix.FullIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Greater(t, result.ChunksTotal, 0)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
}

func TestIndexer_FullIndex_HonorsGitignore(t *testing.T) {
	ix, root, _ := newTestIndexer(t)
	writeFile(t, root, ".gitignore", "vendor/\n")
	writeFile(t, root, "vendor/dep.py", "def dep(): pass\n")
	writeFile(t, root, "main.py", "def main(): pass\n")

	result, err := ix.FullIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestIndexer_ReindexFiles_UnchangedFileReusesAllEmbeddings(t *testing.T) {
	ix, root, _ := newTestIndexer(t)
	writeFile(t, root, "a.py", "def f():\n    return 1\n")

	_, err := ix.FullIndex(context.Background())
	require.NoError(t, err)

	result, err := ix.ReindexFiles(context.Background(), []string{"a.py"})
	require.NoError(t, err)
	assert.Equal(t, result.ChunksTotal, result.Reused)
	assert.Equal(t, 0, result.Recomputed)
}

func TestIndexer_ReindexFiles_EditedLineRecomputesOnlyChangedChunk(t *testing.T) {
	ix, root, _ := newTestIndexer(t)
	writeFile(t, root, "a.py", "def f():\n    return 1\n\n\ndef g():\n    return 2\n")

	_, err := ix.FullIndex(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.py", "def f():\n    return 999\n\n\ndef g():\n    return 2\n")
	result, err := ix.ReindexFiles(context.Background(), []string{"a.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recomputed)
	assert.GreaterOrEqual(t, result.Reused, 1)
}

func TestIndexer_ReindexFiles_DeletedFileRemovesChunks(t *testing.T) {
	ix, root, st := newTestIndexer(t)
	writeFile(t, root, "a.py", "def f(): return 1\n")

	_, err := ix.FullIndex(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.py")))
	_, err = ix.ReindexFiles(context.Background(), []string{"a.py"})
	require.NoError(t, err)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)
}

func TestIndexer_ReconcileOnStartup_RemovesDeletedFileAndAddsNewOne(t *testing.T) {
	ix, root, st := newTestIndexer(t)
	writeFile(t, root, "a.py", "def f(): return 1\n")

	_, err := ix.FullIndex(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.py")))
	writeFile(t, root, "b.py", "def g(): return 2\n")

	_, err = ix.ReconcileOnStartup(context.Background())
	require.NoError(t, err)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)

	paths, err := st.FilePaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, paths)
}
