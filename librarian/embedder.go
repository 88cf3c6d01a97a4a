package librarian

import (
	"context"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/embedding"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/cache"
)

// CachedQueryEmbedder 带 Redis 缓存的查询嵌入器。
// 缓存读写失败只记日志，检索路径永远不因缓存故障失败。
type CachedQueryEmbedder struct {
	generator *embedding.Generator
	cache     *cache.Manager
	logger    *zap.Logger
}

// NewCachedQueryEmbedder 包装嵌入生成器。cache 为 nil 时直接透传。
func NewCachedQueryEmbedder(generator *embedding.Generator, cacheMgr *cache.Manager, logger *zap.Logger) *CachedQueryEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedQueryEmbedder{
		generator: generator,
		cache:     cacheMgr,
		logger:    logger.With(zap.String("component", "cached_embedder")),
	}
}

// EmbedQuery 先查缓存，未命中时调用嵌入服务并回填。
func (e *CachedQueryEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	model := e.generator.Model()

	if e.cache != nil {
		vec, err := e.cache.GetQueryVector(ctx, model, query)
		if err != nil {
			e.logger.Warn("query vector cache read failed", zap.Error(err))
		} else if vec != nil {
			return vec, nil
		}
	}

	vec, err := e.generator.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetQueryVector(ctx, model, query, vec); err != nil {
			e.logger.Warn("query vector cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}
