package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laulauland/ragrep/internal/chunk"
)

func newTestStoreStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(context.Background(), dbPath, "test-embedder")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitVector(dim int, lead int) []float32 {
	v := make([]float32, dim)
	v[lead%dim] = 1
	return v
}

func sampleChunk(path string, ordinal int) chunk.Chunk {
	return chunk.Chunk{
		FilePath: path, Ordinal: ordinal, Kind: chunk.KindFunction,
		ParentName: "", StartLine: ordinal*10 + 1, EndLine: ordinal*10 + 9,
		Text: fmt.Sprintf("fn f%d() {}", ordinal), Hash: uint64(ordinal + 1),
	}
}

func TestStore_InsertAndSearchRoundTrip(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, sampleChunk("a.rs", 0), unitVector(s.dim, 0))
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, sampleChunk("a.rs", 1), unitVector(s.dim, 1))
	require.NoError(t, err)

	refs, err := s.Search(ctx, unitVector(s.dim, 0), 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, 0, refs[0].Ordinal)
}

func TestStore_InsertDuplicateOrdinalIsUniqueViolation(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, sampleChunk("a.rs", 0), unitVector(s.dim, 0))
	require.NoError(t, err)

	_, err = s.InsertChunk(ctx, sampleChunk("a.rs", 0), unitVector(s.dim, 0))
	require.Error(t, err)
}

func TestStore_OpenWithMismatchedEmbedderIsIncompatibleIndex(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := Open(ctx, dbPath, "embedder-a")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, dbPath, "embedder-b")
	require.Error(t, err)
}

// P2: index round trip. chunk_count returns to its pre-index value after
// indexing a file then deleting it again.
func TestStore_IndexRoundTrip_ChunkCountReturnsToBaseline(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	before, err := s.Stats(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.InsertChunk(ctx, sampleChunk("b.py", i), unitVector(s.dim, i))
		require.NoError(t, err)
	}
	mid, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ChunkCount+5, mid.ChunkCount)

	n, err := s.DeleteFile(ctx, "b.py")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	after, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.ChunkCount, after.ChunkCount)
	assert.Equal(t, before.FileCount, after.FileCount)
}

// P3: reindexing the same unchanged file twice (delete then reinsert the
// identical chunks) is idempotent — same chunk_count, same hashes.
func TestStore_ReindexSameFileIsIdempotent(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	insertAll := func() {
		for i := 0; i < 3; i++ {
			_, err := s.InsertChunk(ctx, sampleChunk("c.ts", i), unitVector(s.dim, i))
			require.NoError(t, err)
		}
	}

	insertAll()
	first, err := s.Stats(ctx)
	require.NoError(t, err)

	_, err = s.DeleteFile(ctx, "c.ts")
	require.NoError(t, err)
	insertAll()

	second, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
}

// P4: fetch_embeddings_by_file returns a byte-identical vector for a hash
// that was never invalidated by a write, whether served from the cache or
// freshly read from the relational table.
func TestStore_FetchEmbeddingsByFile_CacheHitMatchesFreshRead(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	c := sampleChunk("d.js", 0)
	vec := unitVector(s.dim, 3)
	_, err := s.InsertChunk(ctx, c, vec)
	require.NoError(t, err)

	first, err := s.FetchEmbeddingsByFile(ctx, "d.js")
	require.NoError(t, err)
	second, err := s.FetchEmbeddingsByFile(ctx, "d.js")
	require.NoError(t, err)

	require.Contains(t, first, c.Hash)
	require.Contains(t, second, c.Hash)
	assert.Equal(t, first[c.Hash], second[c.Hash])
}

// P5: search monotonicity. Increasing k never drops a result already
// returned for a smaller k, and results stay ordered by ascending distance.
func TestStore_SearchMonotonicity(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.InsertChunk(ctx, sampleChunk("e.rs", i), unitVector(s.dim, i))
		require.NoError(t, err)
	}

	query := unitVector(s.dim, 0)
	small, err := s.Search(ctx, query, 3)
	require.NoError(t, err)
	large, err := s.Search(ctx, query, 7)
	require.NoError(t, err)

	require.Len(t, small, 3)
	require.Len(t, large, 7)

	largeIDs := make(map[uint64]bool, len(large))
	for _, r := range large {
		largeIDs[r.ID] = true
	}
	for _, r := range small {
		assert.True(t, largeIDs[r.ID])
	}

	for i := 1; i < len(large); i++ {
		assert.LessOrEqual(t, large[i-1].Distance, large[i].Distance)
	}
}

func TestStore_DeleteFileThenSearchOmitsDeletedChunks(t *testing.T) {
	s := newTestStoreStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, sampleChunk("f.py", 0), unitVector(s.dim, 0))
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, sampleChunk("g.py", 0), unitVector(s.dim, 0))
	require.NoError(t, err)

	_, err = s.DeleteFile(ctx, "f.py")
	require.NoError(t, err)

	refs, err := s.Search(ctx, unitVector(s.dim, 0), 10)
	require.NoError(t, err)
	for _, r := range refs {
		assert.NotEqual(t, "f.py", r.FilePath)
	}
}
