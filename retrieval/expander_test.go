package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

func TestExpandAddsSectionNeighbors(t *testing.T) {
	rel, _, chunks := seedStores(t)
	e := NewExpander(rel, 2, nil)

	results := []types.FusedResult{{Chunk: chunks[1], FusedScore: 0.9}}
	evidence, err := e.Expand(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, evidence, 1)

	// 中间块的前后邻居都被补回。
	require.Len(t, evidence[0].Context, 2)
	assert.Equal(t, chunks[0].ID, evidence[0].Context[0].ID)
	assert.Equal(t, chunks[2].ID, evidence[0].Context[1].ID)
}

func TestExpandDeduplicatesAcrossResults(t *testing.T) {
	rel, _, chunks := seedStores(t)
	e := NewExpander(rel, 2, nil)

	// 两个相邻的结果块：彼此是对方的邻居，但结果块绝不作为邻居重复出现。
	results := []types.FusedResult{
		{Chunk: chunks[0], FusedScore: 0.9},
		{Chunk: chunks[1], FusedScore: 0.8},
	}
	evidence, err := e.Expand(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, evidence, 2)

	seen := map[string]int{chunks[0].ID: 1, chunks[1].ID: 1}
	for _, ev := range evidence {
		for _, n := range ev.Context {
			seen[n.ID]++
			assert.NotEqual(t, chunks[0].ID, n.ID)
			assert.NotEqual(t, chunks[1].ID, n.ID)
		}
	}
	// 块 2 只作为一条结果的邻居出现一次。
	assert.Equal(t, 1, seen[chunks[2].ID])
}

func TestExpandCapsNeighborsPerChunk(t *testing.T) {
	rel, _, chunks := seedStores(t)
	e := NewExpander(rel, 1, nil)

	results := []types.FusedResult{{Chunk: chunks[1], FusedScore: 0.9}}
	evidence, err := e.Expand(context.Background(), results)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Len(t, evidence[0].Context, 1)
}

func TestExpandIsIdempotent(t *testing.T) {
	rel, _, chunks := seedStores(t)
	e := NewExpander(rel, 2, nil)

	results := []types.FusedResult{{Chunk: chunks[1], FusedScore: 0.9}}
	first, err := e.Expand(context.Background(), results)
	require.NoError(t, err)

	second, err := e.Expand(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandEmptyInput(t *testing.T) {
	rel, _, _ := seedStores(t)
	e := NewExpander(rel, 2, nil)

	evidence, err := e.Expand(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, evidence)
}
