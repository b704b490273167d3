package store

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/embedrerank"
	"github.com/laulauland/ragrep/internal/rerr"
)

// embeddingCacheSize bounds the number of distinct files whose
// hash->embedding maps are kept warm between reindex passes.
const embeddingCacheSize = 256

// Store unifies the SQLite relational half and the HNSW vector half
// behind spec §4.2's five operations. Callers are expected to serialize
// access externally (the Server's state_lock, §5) — Store itself does
// not re-derive that guarantee, matching spec's "exclusive write access"
// assumption.
type Store struct {
	rel *relational
	vec *vectorIndex
	dim int

	embeddingCache *lru.Cache[string, map[uint64][]float32]
}

// Open opens (or creates) the store at path, verifying embedderID
// against the persisted meta.embedder_id. A mismatch fails with
// IncompatibleIndex (spec §4.2).
func Open(ctx context.Context, path string, embedderID string) (*Store, error) {
	rel, err := openRelational(path)
	if err != nil {
		return nil, err
	}
	if err := rel.verifyEmbedderID(ctx, embedderID); err != nil {
		rel.close()
		return nil, err
	}

	cache, err := lru.New[string, map[uint64][]float32](embeddingCacheSize)
	if err != nil {
		rel.close()
		return nil, rerr.Wrap(rerr.KindInternal, "create embedding cache", err)
	}

	s := &Store{rel: rel, vec: newVectorIndex(embedrerank.Dimensions), dim: embedrerank.Dimensions, embeddingCache: cache}
	if err := s.loadVectorsFromRelational(ctx); err != nil {
		rel.close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing store at path for querying only: the
// connection is backed by a `?mode=ro` DSN and embedder_id mismatches
// are detected without ever backfilling a missing meta row. Used by the
// client's in-process fallback (spec §5), which must not mutate the
// index it queries. Returns IoError if no store exists at path yet.
func OpenReadOnly(ctx context.Context, path string, embedderID string) (*Store, error) {
	rel, err := openRelationalReadOnly(path)
	if err != nil {
		return nil, err
	}
	if err := rel.verifyEmbedderIDReadOnly(ctx, embedderID); err != nil {
		rel.close()
		return nil, err
	}

	cache, err := lru.New[string, map[uint64][]float32](embeddingCacheSize)
	if err != nil {
		rel.close()
		return nil, rerr.Wrap(rerr.KindInternal, "create embedding cache", err)
	}

	s := &Store{rel: rel, vec: newVectorIndex(embedrerank.Dimensions), dim: embedrerank.Dimensions, embeddingCache: cache}
	if err := s.loadVectorsFromRelational(ctx); err != nil {
		rel.close()
		return nil, err
	}
	return s, nil
}

// loadVectorsFromRelational rebuilds the in-memory HNSW graph from the
// persisted chunks table at open time — the vector index itself is not
// persisted separately, the relational table is the single source of
// truth for both halves.
func (s *Store) loadVectorsFromRelational(ctx context.Context) error {
	rows, err := s.rel.db.QueryContext(ctx, `SELECT id, embedding FROM chunks`)
	if err != nil {
		return rerr.IoErr("load vectors", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return rerr.IoErr("scan vector row", err)
		}
		if err := s.vec.add(ctx, id, decodeEmbedding(raw)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InsertChunk atomically inserts a chunk and its embedding. Fails with
// UniqueViolation if (file_path, ordinal) already exists.
func (s *Store) InsertChunk(ctx context.Context, c chunk.Chunk, embedding []float32) (uint64, error) {
	if len(embedding) != s.dim {
		return 0, rerr.New(rerr.KindInternal, "embedding dimension mismatch")
	}

	id := chunkID(c.FilePath, c.Ordinal)
	rec := Record{
		ID: id, FilePath: c.FilePath, Ordinal: c.Ordinal, Kind: c.Kind,
		ParentName: c.ParentName, StartLine: c.StartLine, EndLine: c.EndLine,
		Text: c.Text, Hash: c.Hash, Embedding: embedding,
	}

	tx, err := s.rel.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rerr.IoErr("begin transaction", err)
	}
	if err := s.rel.insertChunk(ctx, tx, rec); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, rerr.IoErr("commit insert", err)
	}

	if err := s.vec.add(ctx, id, embedding); err != nil {
		return 0, err
	}
	s.embeddingCache.Remove(c.FilePath)
	return id, nil
}

// DeleteFile removes all chunks (and their vectors) for path within one
// transaction, returning the number deleted.
func (s *Store) DeleteFile(ctx context.Context, path string) (int, error) {
	idsRows, err := s.rel.db.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return 0, rerr.IoErr("query file ids", err)
	}
	var ids []uint64
	for idsRows.Next() {
		var id uint64
		if err := idsRows.Scan(&id); err != nil {
			idsRows.Close()
			return 0, rerr.IoErr("scan file id", err)
		}
		ids = append(ids, id)
	}
	idsRows.Close()
	if err := idsRows.Err(); err != nil {
		return 0, rerr.IoErr("iterate file ids", err)
	}

	tx, err := s.rel.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rerr.IoErr("begin transaction", err)
	}
	n, err := s.rel.deleteFile(ctx, tx, path)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, rerr.IoErr("commit delete", err)
	}

	s.vec.delete(ids)
	s.embeddingCache.Remove(path)
	return n, nil
}

// FetchEmbeddingsByFile returns a snapshot of hash -> embedding for every
// chunk currently stored for path, used by the Indexer before a per-file
// rewrite (spec §4.4 step 1). Results are cached per file path since a
// reindex pass issues one lookup per changed file and reads the same set
// repeatedly across a watch session.
func (s *Store) FetchEmbeddingsByFile(ctx context.Context, path string) (map[uint64][]float32, error) {
	if cached, ok := s.embeddingCache.Get(path); ok {
		return cached, nil
	}
	m, err := s.rel.fetchEmbeddingsByFile(ctx, path)
	if err != nil {
		return nil, err
	}
	s.embeddingCache.Add(path, m)
	return m, nil
}

// Search returns the top-k ChunkRef ordered by ascending cosine distance,
// ties broken by ascending id (spec §4.2).
func (s *Store) Search(ctx context.Context, queryVec []float32, k int) ([]ChunkRef, error) {
	ids, distances := s.vec.search(queryVec, k)
	if len(ids) == 0 {
		return nil, nil
	}

	records, err := s.rel.getByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	refs := make([]ChunkRef, 0, len(ids))
	for i, id := range ids {
		rec, ok := records[id]
		if !ok {
			continue
		}
		refs = append(refs, ChunkRef{
			ID: rec.ID, FilePath: rec.FilePath, Ordinal: rec.Ordinal, Kind: rec.Kind,
			ParentName: rec.ParentName, StartLine: rec.StartLine, EndLine: rec.EndLine,
			Text: rec.Text, Distance: distances[i],
		})
	}

	sort.SliceStable(refs, func(a, b int) bool {
		if refs[a].Distance != refs[b].Distance {
			return refs[a].Distance < refs[b].Distance
		}
		return refs[a].ID < refs[b].ID
	})
	return refs, nil
}

// FilePaths returns the distinct set of file paths currently holding at
// least one chunk, used by reconciliation to detect files removed while
// no server was running.
func (s *Store) FilePaths(ctx context.Context) ([]string, error) {
	return s.rel.filePaths(ctx)
}

// Stats returns chunk_count, file_count, dim.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	chunks, err := s.rel.chunkCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	files, err := s.rel.fileCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ChunkCount: chunks, FileCount: files, Dim: s.dim}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.rel.close()
}
