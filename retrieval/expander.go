package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/store"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// Evidence 一条可引用的证据：排名结果加上复原的局部上下文。
type Evidence struct {
	types.FusedResult
	// Context 同章节的相邻块，已去重，不含结果块自身。
	Context []types.Chunk
}

// Expander 上下文扩展器：给 top-k 块补回章节内的相邻块，
// 避免回答模型只看到一个没有前后文的句子片段。
type Expander struct {
	relational *store.RelationalStore
	// 每个原始块最多补回的邻居数。
	maxPerChunk int
	logger      *zap.Logger
}

// NewExpander 创建上下文扩展器.
func NewExpander(relational *store.RelationalStore, maxPerChunk int, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPerChunk <= 0 {
		maxPerChunk = 2
	}
	return &Expander{
		relational:  relational,
		maxPerChunk: maxPerChunk,
		logger:      logger.With(zap.String("component", "context_expander")),
	}
}

// Expand 给每条结果补回章节邻居。
// 扩展是结果集的纯函数：对同一结果集重复调用产出相同证据（幂等），
// 邻居在整个证据集内去重，结果块本身绝不作为邻居重复出现。
func (e *Expander) Expand(ctx context.Context, results []types.FusedResult) ([]Evidence, error) {
	if len(results) == 0 {
		return nil, nil
	}

	// 结果块自身先占位，邻居去重时连同其它结果的邻居一起排除。
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		seen[res.Chunk.ID] = struct{}{}
	}

	evidence := make([]Evidence, 0, len(results))
	for _, res := range results {
		neighbors, err := e.relational.SectionNeighbors(ctx, res.Chunk)
		if err != nil {
			return nil, types.NewError(types.ErrStoreUnavailable, "neighbor lookup failed").
				WithCause(err).WithDocumentID(res.Chunk.DocumentID)
		}

		kept := make([]types.Chunk, 0, len(neighbors))
		for _, n := range neighbors {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			kept = append(kept, n)
			if len(kept) >= e.maxPerChunk {
				break
			}
		}
		evidence = append(evidence, Evidence{FusedResult: res, Context: kept})
	}
	return evidence, nil
}
