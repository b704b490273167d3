package embedrerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_DeterministicAndUnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	v1, err := e.EmbedDocument(context.Background(), "func helloWorld() {}")
	require.NoError(t, err)
	v2, err := e.EmbedDocument(context.Background(), "func helloWorld() {}")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, Dimensions)

	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestStaticEmbedder_QueryAndDocumentDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	qv, err := e.EmbedQuery(context.Background(), "search text")
	require.NoError(t, err)
	dv, err := e.EmbedDocument(context.Background(), "search text")
	require.NoError(t, err)
	assert.NotEqual(t, qv, dv)
}

func TestStaticEmbedder_EmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	v, err := e.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_ClosedRejectsCalls(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.EmbedQuery(context.Background(), "x")
	assert.Error(t, err)
}

func TestStaticReranker_OrdersByRelevance(t *testing.T) {
	r := NewStaticReranker()
	defer r.Close()

	docs := []string{
		"func unrelatedThing() { return nil }",
		"func parseConfigFile(path string) error { return nil }",
	}
	ranked, err := r.Score(context.Background(), "parse config file", docs)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.GreaterOrEqual(t, ranked[0].Score, ranked[1].Score)
}
