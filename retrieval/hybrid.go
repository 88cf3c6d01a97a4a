package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/rerank"
	"github.com/AndreF343/Warhammer40K-The-Librarian/store"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// QueryEmbedder 查询侧的嵌入接口，由 embedding.Generator 实现。
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// Retriever 混合检索器。
type Retriever struct {
	cfg        config.RetrievalConfig
	relational *store.RelationalStore
	vector     store.VectorStore
	embedder   QueryEmbedder
	reranker   rerank.Provider // 可为 nil
	metrics    SourceMetrics   // 可为 nil
	logger     *zap.Logger
}

// NewRetriever 创建混合检索器。reranker 传 nil 表示不启用重排。
func NewRetriever(
	cfg config.RetrievalConfig,
	relational *store.RelationalStore,
	vector store.VectorStore,
	embedder QueryEmbedder,
	reranker rerank.Provider,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		cfg:        cfg,
		relational: relational,
		vector:     vector,
		embedder:   embedder,
		reranker:   reranker,
		logger:     logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// Retrieve 用指定来源检索并融合，返回最终 top-k。
// 来源为空时默认 lexical + vector。
func (r *Retriever) Retrieve(ctx context.Context, query string, sources ...types.RetrievalSource) ([]types.FusedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrMalformedInput, "retrieve: empty query")
	}
	if len(sources) == 0 {
		sources = []types.RetrievalSource{types.SourceLexical, types.SourceVector}
	}

	perSource := make(map[types.RetrievalSource][]store.ScoredChunk, len(sources))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		eg.Go(func() error {
			hits := r.runSource(egCtx, src, query)
			mu.Lock()
			perSource[src] = hits
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, types.NewError(types.ErrCancelled, "retrieve aborted").WithCause(ctx.Err())
	}

	fused := r.fuse(perSource)
	if len(fused) == 0 {
		return nil, nil
	}

	candidateK := r.cfg.CandidateK
	if candidateK <= 0 {
		candidateK = len(fused)
	}
	if len(fused) > candidateK {
		fused = fused[:candidateK]
	}

	fused = r.rerankCandidates(ctx, query, fused)

	topK := r.cfg.TopK
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// SourceMetrics 来源级观测回调，由 metrics 收集器实现。
type SourceMetrics interface {
	ObserveRetrievalSource(source string, duration time.Duration)
	RetrievalSourceDegraded(source string)
}

// SetMetrics 安装来源级观测。传 nil 关闭观测。
func (r *Retriever) SetMetrics(m SourceMetrics) {
	r.metrics = m
}

// runSource 在独立超时内执行单个来源。超时或出错降级为空结果。
func (r *Retriever) runSource(ctx context.Context, src types.RetrievalSource, query string) []store.ScoredChunk {
	if r.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SourceTimeout)
		defer cancel()
	}

	start := time.Now()
	var hits []store.ScoredChunk
	var err error
	switch src {
	case types.SourceLexical:
		hits, err = r.relational.LexicalSearch(ctx, query, r.candidateLimit())
	case types.SourceVector:
		hits, err = r.vectorSearch(ctx, query)
	case types.SourceGraph:
		hits, err = r.graphSearch(ctx, query)
	default:
		return nil
	}

	if r.metrics != nil {
		r.metrics.ObserveRetrievalSource(string(src), time.Since(start))
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.RetrievalSourceDegraded(string(src))
		}
		degraded := types.NewError(types.ErrRetrievalTimeout, "retrieval source degraded").
			WithCause(err).WithRetryable(true)
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("retrieval source timed out",
				zap.String("source", string(src)),
				zap.Error(degraded))
		} else {
			r.logger.Warn("retrieval source failed",
				zap.String("source", string(src)),
				zap.Error(degraded))
		}
		return nil
	}
	return hits
}

func (r *Retriever) candidateLimit() int {
	if r.cfg.CandidateK > 0 {
		return r.cfg.CandidateK
	}
	return 25
}

// vectorSearch 嵌入查询、检索向量库，并经关系库解析为活动版本的块。
func (r *Retriever) vectorSearch(ctx context.Context, query string) ([]store.ScoredChunk, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	vecHits, err := r.vector.Search(ctx, vec, r.candidateLimit())
	if err != nil {
		return nil, err
	}
	if len(vecHits) == 0 {
		return nil, nil
	}

	refs := make([]store.ChunkRef, 0, len(vecHits))
	scoreByRef := make(map[store.ChunkRef]float64, len(vecHits))
	for _, h := range vecHits {
		ref := store.ChunkRef{ChunkID: h.ChunkID, Version: h.Version}
		refs = append(refs, ref)
		scoreByRef[ref] = h.Score
	}

	// 退役版本的点在解析阶段被静默丢弃，保证只有活动版本参与融合。
	chunks, err := r.relational.ActiveChunks(ctx, refs)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		ref := store.ChunkRef{ChunkID: chunks[i].Chunk.ID, Version: chunks[i].Chunk.Version}
		chunks[i].Score = scoreByRef[ref]
	}
	return chunks, nil
}

// graphSearch 从查询里派生候选键做结构化精确匹配。
func (r *Retriever) graphSearch(ctx context.Context, query string) ([]store.ScoredChunk, error) {
	var hits []store.ScoredChunk
	seen := make(map[store.ChunkRef]struct{})
	for _, key := range graphKeys(query) {
		keyHits, err := r.relational.GraphSearch(ctx, key, r.candidateLimit())
		if err != nil {
			return nil, err
		}
		for _, h := range keyHits {
			ref := store.ChunkRef{ChunkID: h.Chunk.ID, Version: h.Chunk.Version}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			hits = append(hits, h)
		}
		if len(hits) >= r.candidateLimit() {
			break
		}
	}
	return hits, nil
}

// graphKeys 生成结构化匹配的候选键：整句、单词与相邻二元组。
const maxGraphKeys = 16

func graphKeys(query string) []string {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(query), ".,;:!?"))
	words := strings.Fields(cleaned)

	keys := make([]string, 0, 1+2*len(words))
	seen := make(map[string]struct{})
	add := func(k string) {
		k = strings.ToLower(strings.Trim(k, ".,;:!?'\""))
		if len(k) < 3 {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	add(cleaned)
	for i, w := range words {
		add(w)
		if i+1 < len(words) {
			add(w + " " + words[i+1])
		}
		if len(keys) >= maxGraphKeys {
			break
		}
	}
	return keys
}

// fuse 归一化并加权合并各来源的命中。
func (r *Retriever) fuse(perSource map[types.RetrievalSource][]store.ScoredChunk) []types.FusedResult {
	weights := map[types.RetrievalSource]float64{
		types.SourceLexical: r.cfg.LexicalWeight,
		types.SourceVector:  r.cfg.VectorWeight,
		types.SourceGraph:   r.cfg.GraphWeight,
	}

	merged := make(map[store.ChunkRef]*types.FusedResult)
	for src, hits := range perSource {
		normalized := normalizeScores(hits)
		for i, h := range hits {
			ref := store.ChunkRef{ChunkID: h.Chunk.ID, Version: h.Chunk.Version}
			fr, ok := merged[ref]
			if !ok {
				fr = &types.FusedResult{
					Chunk:        h.Chunk,
					SourceScores: make(map[types.RetrievalSource]float64),
					IngestedAt:   h.IngestedAt,
				}
				merged[ref] = fr
			}
			fr.SourceScores[src] = normalized[i]
			fr.FusedScore += weights[src] * normalized[i]
		}
	}

	out := make([]types.FusedResult, 0, len(merged))
	for _, fr := range merged {
		out = append(out, *fr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		// 平分：先新近性，再块位置。
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		if out[i].Chunk.SectionIdx != out[j].Chunk.SectionIdx {
			return out[i].Chunk.SectionIdx < out[j].Chunk.SectionIdx
		}
		return out[i].Chunk.ChunkIdx < out[j].Chunk.ChunkIdx
	})
	return out
}

// normalizeScores 把一个来源的分数 min-max 归一化到 [0,1]。
// 全部同分时归一化为 1.0，命中本身就是信号。
func normalizeScores(hits []store.ScoredChunk) []float64 {
	if len(hits) == 0 {
		return nil
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	out := make([]float64, len(hits))
	if maxScore == minScore {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, h := range hits {
		out[i] = (h.Score - minScore) / (maxScore - minScore)
	}
	return out
}

// rerankCandidates 可选的重排步骤。失败时保持融合分序，属于降级而非错误。
func (r *Retriever) rerankCandidates(ctx context.Context, query string, candidates []types.FusedResult) []types.FusedResult {
	if r.reranker == nil || len(candidates) < 2 {
		return candidates
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Text
	}

	results, err := r.reranker.Rerank(ctx, &rerank.Request{Query: query, Documents: docs})
	if err != nil {
		r.logger.Warn("rerank unavailable, keeping fusion order", zap.Error(err))
		return candidates
	}
	if len(results) == 0 {
		return candidates
	}

	reordered := make([]types.FusedResult, 0, len(candidates))
	seen := make(map[int]struct{}, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		if _, ok := seen[res.Index]; ok {
			continue
		}
		seen[res.Index] = struct{}{}
		c := candidates[res.Index]
		c.RerankScore = res.RelevanceScore
		reordered = append(reordered, c)
	}
	// 重排响应缺失的候选保持原有顺序垫底。
	for i, c := range candidates {
		if _, ok := seen[i]; !ok {
			reordered = append(reordered, c)
		}
	}
	return reordered
}
