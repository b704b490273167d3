// Package store is the embedded relational database augmented with
// nearest-neighbor vector search described in spec §4.2: chunks and their
// embeddings live in one transactional unit, with a closed five-operation
// contract (insert_chunk, delete_file, fetch_embeddings_by_file, search,
// stats) sitting on top of a SQLite relational half and an in-process
// HNSW vector half.
package store

import "github.com/laulauland/ragrep/internal/chunk"

// Record is a persisted Chunk plus its embedding, keyed by a stable
// 64-bit id derived from (file_path, ordinal).
type Record struct {
	ID        uint64
	FilePath  string
	Ordinal   int
	Kind      chunk.Kind
	ParentName string
	StartLine int
	EndLine   int
	Text      string
	Hash      uint64
	Embedding []float32
}

// ChunkRef is the result tuple returned by Search: chunk identity + text
// + cosine distance (spec §3).
type ChunkRef struct {
	ID        uint64
	FilePath  string
	Ordinal   int
	Kind      chunk.Kind
	ParentName string
	StartLine int
	EndLine   int
	Text      string
	Distance  float32
}

// Stats is the result of Store.Stats().
type Stats struct {
	ChunkCount int
	FileCount  int
	Dim        int
}

// chunkID derives the stable 64-bit primary key for a (file_path,
// ordinal) pair. It is distinct from Chunk.Hash (which tracks content,
// not identity) but uses the same normalized-FNV approach for
// consistency with the Chunker's own hashing, per spec §3's invariant
// that (file_path, ordinal) is the unique key.
func chunkID(filePath string, ordinal int) uint64 {
	return fnv64a(filePath, ordinal)
}
