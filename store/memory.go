package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

var _ VectorStore = (*MemoryVectorStore)(nil)

// MemoryVectorStore 余弦相似度的内存向量库，测试与本地模式用。
type MemoryVectorStore struct {
	mu     sync.RWMutex
	points map[string]ChunkPoint // key: chunkID@version
}

// NewMemoryVectorStore 创建内存向量库.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{points: make(map[string]ChunkPoint)}
}

func pointKey(chunkID string, version int64) string {
	return fmt.Sprintf("%s@%d", chunkID, version)
}

// Upsert 写入或覆盖一批点.
func (m *MemoryVectorStore) Upsert(_ context.Context, points []ChunkPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if p.ChunkID == "" {
			return fmt.Errorf("memory vector store: empty chunk id")
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("memory vector store: chunk %s has empty vector", p.ChunkID)
		}
		m.points[pointKey(p.ChunkID, p.Version)] = p
	}
	return nil
}

// Search 余弦相似度排序返回 topK 个命中.
func (m *MemoryVectorStore) Search(_ context.Context, vector []float64, topK int) ([]VectorHit, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]VectorHit, 0, len(m.points))
	for _, p := range m.points {
		score := cosineSimilarity(vector, p.Vector)
		hits = append(hits, VectorHit{ChunkID: p.ChunkID, Version: p.Version, Score: score})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete 按引用删除点.
func (m *MemoryVectorStore) Delete(_ context.Context, refs []ChunkRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		delete(m.points, pointKey(ref.ChunkID, ref.Version))
	}
	return nil
}

// Count 返回点总数.
func (m *MemoryVectorStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// HealthCheck 永远健康.
func (m *MemoryVectorStore) HealthCheck(_ context.Context) error { return nil }

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
