package store

import "context"

// ChunkPoint 一个待写入向量库的点：块引用 + 向量 + 模型标识。
type ChunkPoint struct {
	ChunkID    string
	DocumentID string
	Version    int64
	Model      string
	Vector     []float64
}

// VectorHit 向量检索命中。只携带引用与分数，
// 块正文由关系库按活动版本解析，顺带过滤掉已退役的点。
type VectorHit struct {
	ChunkID string
	Version int64
	Score   float64
}

// VectorStore 向量存储接口。
type VectorStore interface {
	// Upsert 写入或覆盖一批点。
	Upsert(ctx context.Context, points []ChunkPoint) error

	// Search 按余弦相似度检索 topK 个点。
	Search(ctx context.Context, vector []float64, topK int) ([]VectorHit, error)

	// Delete 按引用删除点（版本回收与提交回滚共用）。
	Delete(ctx context.Context, refs []ChunkRef) error

	// Count 返回点总数。
	Count(ctx context.Context) (int, error)

	// HealthCheck 探活。
	HealthCheck(ctx context.Context) error
}
