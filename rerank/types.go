package rerank

import "context"

// Request 重排请求。
type Request struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// Result 单条重排结果。Index 指向输入 Documents 中的原始下标。
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"` // 0-1 归一化分数
}

// Provider 统一的重排提供者接口。
type Provider interface {
	// Rerank 按与查询的相关性重排文档。
	Rerank(ctx context.Context, req *Request) ([]Result, error)

	// Name 返回提供者名称。
	Name() string

	// MaxDocuments 返回支持的最大候选数。
	MaxDocuments() int
}
