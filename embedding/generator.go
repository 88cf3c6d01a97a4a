package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/retry"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// Generator 将文档块批量转换为嵌入向量。
// 批内顺序与输入顺序一致；任何一批失败则整个文档失败，不做部分提交。
type Generator struct {
	provider Provider
	cfg      config.EmbeddingConfig
	limiter  *rate.Limiter
	retryer  retry.Retryer
	logger   *zap.Logger
}

// NewGenerator 创建嵌入生成器.
func NewGenerator(cfg config.EmbeddingConfig, provider Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	policy := &retry.Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialBackoff,
		MaxDelay:     cfg.InitialBackoff * 32,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf:      types.IsRetryable,
	}
	if policy.MaxRetries <= 0 {
		policy = retry.DefaultPolicy()
		policy.RetryIf = types.IsRetryable
	}
	return &Generator{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger.With(zap.String("component", "embedding_generator")),
	}
}

// GenerateChunkEmbeddings 为一个文档的全部块生成嵌入。
// 返回的切片与 chunks 等长且按相同顺序排列。
func (g *Generator) GenerateChunkEmbeddings(ctx context.Context, chunks []types.Chunk) ([]types.Embedding, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batchSize := g.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = g.provider.MaxBatchSize()
	}
	if pmax := g.provider.MaxBatchSize(); pmax > 0 && batchSize > pmax {
		batchSize = pmax
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batches = append(batches, batch{start: start, texts: texts})
	}

	out := make([]types.Embedding, len(chunks))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	concurrency := g.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	eg.SetLimit(concurrency)

	for _, b := range batches {
		b := b
		eg.Go(func() error {
			vectors, err := g.embedBatch(egCtx, b.texts)
			if err != nil {
				return err
			}
			mu.Lock()
			for i, vec := range vectors {
				chunk := chunks[b.start+i]
				out[b.start+i] = types.Embedding{
					ChunkID: chunk.ID,
					Model:   g.provider.Model(),
					Vector:  vec,
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if egCtx.Err() != nil && ctx.Err() != nil {
			return nil, types.NewError(types.ErrCancelled, "embedding generation aborted").WithCause(ctx.Err())
		}
		g.logger.Warn("embedding generation failed",
			zap.Int("chunks", len(chunks)),
			zap.Error(err))
		if e, ok := err.(*types.Error); ok {
			return nil, e
		}
		return nil, types.NewError(types.ErrEmbeddingProvider, "embedding generation failed").
			WithCause(err).WithProvider(g.provider.Name())
	}

	return out, nil
}

// Model 返回底层提供商的嵌入模型名。
func (g *Generator) Model() string {
	return g.provider.Model()
}

// EmbedQuery 嵌入单个查询，复用限流与重试策略。
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	var vec []float64
	err := g.retryer.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return types.NewError(types.ErrCancelled, "rate limit wait aborted").WithCause(err)
		}
		v, err := g.provider.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// embedBatch 嵌入一个批次，重试耗尽后返回致命错误。
func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64

	err := g.retryer.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return types.NewError(types.ErrCancelled, "rate limit wait aborted").WithCause(err)
		}

		resp, err := g.provider.Embed(ctx, &Request{Input: texts, InputType: InputTypeDocument})
		if err != nil {
			return err
		}

		// 响应与请求必须一一对应，错位会造成静默的索引污染。
		if len(resp.Embeddings) != len(texts) {
			return types.NewError(types.ErrProviderMismatch,
				fmt.Sprintf("embed batch: requested %d embeddings, got %d", len(texts), len(resp.Embeddings))).
				WithProvider(g.provider.Name())
		}

		vectors = make([][]float64, len(resp.Embeddings))
		for i, d := range resp.Embeddings {
			vectors[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		if e, ok := err.(*types.Error); ok {
			return nil, e
		}
		return nil, types.NewError(types.ErrEmbeddingProvider, "embed batch failed after retries").
			WithCause(err).WithProvider(g.provider.Name())
	}
	return vectors, nil
}
