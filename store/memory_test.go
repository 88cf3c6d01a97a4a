package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVectorStoreSearchOrdering(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []ChunkPoint{
		{ChunkID: "a#s0.c0", Version: 1, Vector: []float64{1, 0, 0}},
		{ChunkID: "b#s0.c0", Version: 1, Vector: []float64{0.9, 0.1, 0}},
		{ChunkID: "c#s0.c0", Version: 1, Vector: []float64{0, 1, 0}},
	}))

	hits, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a#s0.c0", hits[0].ChunkID)
	assert.Equal(t, "b#s0.c0", hits[1].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryVectorStoreVersionedPoints(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	// 同一 chunk_id 的两个版本是两个独立的点。
	require.NoError(t, s.Upsert(ctx, []ChunkPoint{
		{ChunkID: "a#s0.c0", Version: 1, Vector: []float64{1, 0}},
		{ChunkID: "a#s0.c0", Version: 2, Vector: []float64{1, 0}},
	}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Delete(ctx, []ChunkRef{{ChunkID: "a#s0.c0", Version: 1}}))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.Search(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].Version)
}

func TestMemoryVectorStoreRejectsEmptyVector(t *testing.T) {
	s := NewMemoryVectorStore()
	err := s.Upsert(context.Background(), []ChunkPoint{{ChunkID: "a#s0.c0", Version: 1}})
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
}
