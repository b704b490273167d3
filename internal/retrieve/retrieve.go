// Package retrieve implements the two-stage query pipeline of spec §4.5:
// embed the query, over-sample nearest neighbors from the Store, rerank
// with a cross-encoder, return the top_n.
package retrieve

import (
	"context"
	"sort"
	"strings"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/embedrerank"
	"github.com/laulauland/ragrep/internal/rerr"
	"github.com/laulauland/ragrep/internal/store"
)

const (
	maxQueryBytes           = 2 * 1024
	minTopN                 = 1
	maxTopN                 = 100
	defaultOversampleFactor = 5
	oversampleMinimum       = 50
)

// Result is one ranked match, omitting Text when the caller asked for
// FilesOnly.
type Result struct {
	FilePath   string
	Ordinal    int
	Kind       chunk.Kind
	ParentName string
	StartLine  int
	EndLine    int
	Text       string
	Score      float32
}

// Query parameters for Retriever.Search.
type Query struct {
	Text      string
	TopN      int
	FilesOnly bool
}

// Retriever is the owner of one Embedder/Store/Reranker triple for the
// lifetime of a query. It does not itself manage locking — the Server's
// state_lock (§5) serializes concurrent queries against reindex passes.
type Retriever struct {
	embedder embedrerank.Embedder
	store    *store.Store
	reranker embedrerank.Reranker

	oversampleFactor int
	topNDefault      int
}

// New builds a Retriever over an already-open Store/Embedder/Reranker.
// oversampleFactor is spec §6.4's retrieval.oversample_factor (how many
// candidates the Store recalls per requested result, before rerank);
// topNDefault is retrieval.top_n_default, applied when a Query arrives
// with TopN <= 0. Non-positive values fall back to the documented
// defaults of 5 and 10 respectively, so a zero-value Config still
// behaves sanely.
func New(embedder embedrerank.Embedder, st *store.Store, reranker embedrerank.Reranker, oversampleFactor, topNDefault int) *Retriever {
	if oversampleFactor <= 0 {
		oversampleFactor = defaultOversampleFactor
	}
	if topNDefault <= 0 {
		topNDefault = 10
	}
	return &Retriever{
		embedder: embedder, store: st, reranker: reranker,
		oversampleFactor: oversampleFactor, topNDefault: topNDefault,
	}
}

// Search runs the query pipeline of spec §4.5. The returned int is the
// size of the pre-rerank candidate pool (spec §6.3's num_candidates),
// distinct from len(results) (num_results) whenever topN trims it down.
func (r *Retriever) Search(ctx context.Context, q Query) ([]Result, int, error) {
	trimmed := strings.TrimSpace(q.Text)
	if trimmed == "" {
		return nil, 0, rerr.InvalidQuery("query is empty or whitespace-only")
	}
	if len(q.Text) > maxQueryBytes {
		return nil, 0, rerr.InvalidQuery("query exceeds 2KiB")
	}

	topN := q.TopN
	if topN <= 0 {
		topN = r.topNDefault
	}
	if topN < minTopN {
		topN = minTopN
	}
	if topN > maxTopN {
		topN = maxTopN
	}

	qv, err := r.embedder.EmbedQuery(ctx, trimmed)
	if err != nil {
		return nil, 0, err
	}

	k1 := topN * r.oversampleFactor
	if k1 < oversampleMinimum {
		k1 = oversampleMinimum
	}

	candidates, err := r.store.Search(ctx, qv, k1)
	if err != nil {
		return nil, 0, err
	}
	numCandidates := len(candidates)
	if numCandidates == 0 {
		return nil, 0, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	ranked, err := r.reranker.Score(ctx, trimmed, documents)
	if err != nil {
		return nil, numCandidates, err
	}

	results := make([]Result, 0, len(ranked))
	for _, rd := range ranked {
		c := candidates[rd.Index]
		res := Result{
			FilePath: c.FilePath, Ordinal: c.Ordinal, Kind: c.Kind,
			ParentName: c.ParentName, StartLine: c.StartLine, EndLine: c.EndLine,
			Score: rd.Score,
		}
		if !q.FilesOnly {
			res.Text = c.Text
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		if results[a].FilePath != results[b].FilePath {
			return results[a].FilePath < results[b].FilePath
		}
		return results[a].StartLine < results[b].StartLine
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, numCandidates, nil
}
