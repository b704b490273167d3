// Package embedrerank defines the external Embedder/Reranker contract
// (spec §4.3, §6.2): the core treats both as opaque, already-loaded
// capabilities and never manages their weights or backing process.
package embedrerank

import "context"

// Dimensions is the embedder's fixed output dimension, constant per
// deployment.
const Dimensions = 1024

// Embedder turns text into a unit-norm vector. embed_query and
// embed_document are kept distinct because some models prepend
// task-specific prefixes internally; callers must never mix them.
//
// Thread-safety: single-owner. Callers serialize access via an exclusive
// lock (embedder_lock, §5) — implementations are not required to be
// reentrant.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// ID is the stable identifier recorded in meta.embedder_id. It
	// changes if and only if the embedding function changes.
	ID() string

	Close() error
}

// RankedDocument is one entry of a Reranker.Score result.
type RankedDocument struct {
	Index int     // position in the documents argument
	Score float32 // higher is better; not calibrated across queries
}

// Reranker cross-encodes (query, document) pairs for relevance scoring.
//
// Thread-safety: single-owner, serialized via reranker_lock (§5).
type Reranker interface {
	Score(ctx context.Context, query string, documents []string) ([]RankedDocument, error)
	Close() error
}
