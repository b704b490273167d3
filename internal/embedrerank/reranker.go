package embedrerank

import (
	"context"
	"sort"
)

// StaticReranker scores (query, document) pairs by token-overlap cosine
// similarity against the same StaticEmbedder vector space, giving a
// reranker test double that actually reorders candidates instead of
// passing them through untouched.
type StaticReranker struct {
	embedder *StaticEmbedder
}

// NewStaticReranker builds a StaticReranker.
func NewStaticReranker() *StaticReranker {
	return &StaticReranker{embedder: NewStaticEmbedder()}
}

func (r *StaticReranker) Score(ctx context.Context, query string, documents []string) ([]RankedDocument, error) {
	qv, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]RankedDocument, len(documents))
	for i, doc := range documents {
		dv, err := r.embedder.EmbedDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		results[i] = RankedDocument{Index: i, Score: dot(qv, dv)}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (r *StaticReranker) Close() error { return r.embedder.Close() }

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ Reranker = (*StaticReranker)(nil)
