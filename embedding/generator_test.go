package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// fakeProvider 返回由输入长度派生的确定性向量，可注入失败。
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failTimes int
	failWith  error
	mismatch  bool
	maxBatch  int
}

func (f *fakeProvider) Embed(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failTimes > 0 {
		f.failTimes--
		return nil, f.failWith
	}
	n := len(req.Input)
	if f.mismatch {
		n--
	}
	data := make([]Data, 0, n)
	for i := 0; i < n; i++ {
		data = append(data, Data{Index: i, Embedding: []float64{float64(len(req.Input[i])), 1.0}})
	}
	return &Response{Provider: "fake", Model: "fake-embed", Embeddings: data}, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	resp, err := f.Embed(ctx, &Request{Input: []string{query}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0].Embedding, nil
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Model() string   { return "fake-embed" }
func (f *fakeProvider) Dimensions() int { return 2 }
func (f *fakeProvider) MaxBatchSize() int {
	if f.maxBatch > 0 {
		return f.maxBatch
	}
	return 100
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testEmbedConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Model:             "fake-embed",
		BatchSize:         3,
		Concurrency:       2,
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
	}
}

func makeChunks(n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		chunks[i] = types.Chunk{
			ID:         types.ChunkID("roboute-guilliman", 0, i),
			DocumentID: "roboute-guilliman",
			Text:       fmt.Sprintf("chunk number %d", i),
		}
	}
	return chunks
}

func TestGeneratorPreservesOrder(t *testing.T) {
	provider := &fakeProvider{}
	gen := NewGenerator(testEmbedConfig(), provider, nil)

	chunks := makeChunks(10)
	embeddings, err := gen.GenerateChunkEmbeddings(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, embeddings, len(chunks))

	for i, emb := range embeddings {
		assert.Equal(t, chunks[i].ID, emb.ChunkID)
		assert.Equal(t, "fake-embed", emb.Model)
		// 第一维编码了输入文本长度，可验证批次没有错位。
		assert.Equal(t, float64(len(chunks[i].Text)), emb.Vector[0])
	}

	// 10 个块、批大小 3 → 4 次请求。
	assert.Equal(t, 4, provider.callCount())
}

func TestGeneratorEmptyInput(t *testing.T) {
	gen := NewGenerator(testEmbedConfig(), &fakeProvider{}, nil)
	embeddings, err := gen.GenerateChunkEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestGeneratorRetriesTransientFailure(t *testing.T) {
	provider := &fakeProvider{
		failTimes: 2,
		failWith:  types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true),
	}
	cfg := testEmbedConfig()
	cfg.BatchSize = 10
	gen := NewGenerator(cfg, provider, nil)

	embeddings, err := gen.GenerateChunkEmbeddings(context.Background(), makeChunks(4))
	require.NoError(t, err)
	assert.Len(t, embeddings, 4)
	assert.Equal(t, 3, provider.callCount())
}

func TestGeneratorFailsAfterRetriesExhausted(t *testing.T) {
	provider := &fakeProvider{
		failTimes: 100,
		failWith:  types.NewError(types.ErrUpstreamError, "boom").WithRetryable(true),
	}
	cfg := testEmbedConfig()
	cfg.BatchSize = 10
	cfg.MaxRetries = 2
	gen := NewGenerator(cfg, provider, nil)

	_, err := gen.GenerateChunkEmbeddings(context.Background(), makeChunks(2))
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	// 初次尝试 + 2 次重试。
	assert.Equal(t, 3, provider.callCount())
}

func TestGeneratorDoesNotRetryNonRetryable(t *testing.T) {
	provider := &fakeProvider{
		failTimes: 100,
		failWith:  types.NewError(types.ErrUnauthorized, "bad key"),
	}
	cfg := testEmbedConfig()
	cfg.BatchSize = 10
	gen := NewGenerator(cfg, provider, nil)

	_, err := gen.GenerateChunkEmbeddings(context.Background(), makeChunks(2))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
	assert.Equal(t, 1, provider.callCount())
}

func TestGeneratorLengthMismatchIsFatal(t *testing.T) {
	provider := &fakeProvider{mismatch: true}
	cfg := testEmbedConfig()
	cfg.BatchSize = 10
	gen := NewGenerator(cfg, provider, nil)

	_, err := gen.GenerateChunkEmbeddings(context.Background(), makeChunks(3))
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderMismatch, types.GetErrorCode(err))
	// 错位不可重试。
	assert.Equal(t, 1, provider.callCount())
}

func TestGeneratorCancelledContext(t *testing.T) {
	provider := &fakeProvider{}
	gen := NewGenerator(testEmbedConfig(), provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.GenerateChunkEmbeddings(ctx, makeChunks(6))
	require.Error(t, err)
}

func TestGeneratorEmbedQuery(t *testing.T) {
	gen := NewGenerator(testEmbedConfig(), &fakeProvider{}, nil)

	vec, err := gen.EmbedQuery(context.Background(), "who is the primarch of the Ultramarines")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}
