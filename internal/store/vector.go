package store

import (
	"context"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/laulauland/ragrep/internal/rerr"
)

// vectorIndex is the HNSW-backed approximate nearest-neighbor half of the
// Store. Unlike the teacher's HNSWStore, it is keyed directly on the same
// uint64 chunk id used by the relational half — chunk identity is already
// a stable integer (spec §3's (file_path, ordinal) pair), so no separate
// string<->key mapping layer is needed.
//
// Deletion is lazy: coder/hnsw's own Delete can corrupt the graph when it
// removes the last remaining node, so deleted ids are tombstoned instead
// of actually removed from the graph, and filtered out of search results.
type vectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dim     int
	deleted map[uint64]bool
}

func newVectorIndex(dim int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &vectorIndex{graph: graph, dim: dim, deleted: make(map[uint64]bool)}
}

func (v *vectorIndex) add(ctx context.Context, id uint64, embedding []float32) error {
	if len(embedding) != v.dim {
		return rerr.New(rerr.KindInternal, "embedding dimension mismatch")
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	normalizeInPlace(vec)

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.deleted, id)
	v.graph.Add(hnsw.MakeNode(id, vec))
	return nil
}

func (v *vectorIndex) delete(ids []uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		v.deleted[id] = true
	}
}

// search returns the k nearest neighbors to query, ordered by ascending
// cosine distance, skipping tombstoned ids. It over-fetches from the
// graph to compensate for tombstones still occupying graph slots.
func (v *vectorIndex) search(query []float32, k int) ([]uint64, []float32) {
	vec := make([]float32, len(query))
	copy(vec, query)
	normalizeInPlace(vec)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	fetch := k + len(v.deleted)
	if fetch < k {
		fetch = k
	}
	nodes := v.graph.Search(vec, fetch)

	ids := make([]uint64, 0, k)
	distances := make([]float32, 0, k)
	for _, n := range nodes {
		if v.deleted[n.Key] {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, v.graph.Distance(vec, n.Value))
		if len(ids) == k {
			break
		}
	}
	return ids, distances
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	scale := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= scale
	}
}
