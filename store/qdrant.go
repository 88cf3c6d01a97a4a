package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
)

var _ VectorStore = (*QdrantStore)(nil)

// QdrantStore 基于 Qdrant REST API 的向量库实现。
// 点 ID 是由 chunk_id@version 派生的稳定 UUID，重复写幂等。
type QdrantStore struct {
	cfg     config.QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	vectorSize int
	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore 创建 Qdrant 向量库.
func NewQdrantStore(cfg config.QdrantConfig, vectorSize int, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &QdrantStore{
		cfg:        cfg,
		baseURL:    fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(zap.String("component", "qdrant_store")),
		vectorSize: vectorSize,
	}
}

var qdrantNamespace = uuid.MustParse("8f2b8e5a-1c6d-4a9e-b0f3-7d4e9c2a5b18")

// qdrantPointID 由块引用派生稳定 UUID。同一块的不同版本映射到不同点。
func qdrantPointID(chunkID string, version int64) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(pointKey(chunkID, version))).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		}
		endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.cfg.Collection))
		reqBody, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			s.ensureErr = err
			return
		}
		s.applyHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			s.ensureErr = err
			return
		}
		defer resp.Body.Close()

		// 集合已存在时 Qdrant 返回 409。
		if resp.StatusCode == http.StatusConflict {
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			s.ensureErr = fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
		}
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Upsert 写入或覆盖一批点.
func (s *QdrantStore) Upsert(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	vectorSize := s.vectorSize
	for i, p := range points {
		if p.ChunkID == "" {
			return fmt.Errorf("point[%d] has empty chunk id", i)
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("point[%d] has empty vector", i)
		}
		if vectorSize == 0 {
			vectorSize = len(p.Vector)
		}
		if len(p.Vector) != vectorSize {
			return fmt.Errorf("point[%d] vector dimension mismatch: got=%d want=%d", i, len(p.Vector), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	reqPoints := make([]point, 0, len(points))
	for _, p := range points {
		reqPoints = append(reqPoints, point{
			ID:     qdrantPointID(p.ChunkID, p.Version),
			Vector: p.Vector,
			Payload: map[string]any{
				"chunk_id":        p.ChunkID,
				"document_id":     p.DocumentID,
				"version":         p.Version,
				"embedding_model": p.Model,
			},
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: reqPoints}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	if err := s.doJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(points)))
	return nil
}

// Search 余弦相似度检索 topK 个点.
func (s *QdrantStore) Search(ctx context.Context, vector []float64, topK int) ([]VectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	req := struct {
		Vector      []float64 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
	}{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
		WithVector:  false,
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := VectorHit{Score: r.Score}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			hit.ChunkID = v
		}
		if v, ok := r.Payload["version"].(float64); ok {
			hit.Version = int64(v)
		}
		if hit.ChunkID == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Delete 按引用删除点.
func (s *QdrantStore) Delete(ctx context.Context, refs []ChunkRef) error {
	if len(refs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.ChunkID) == "" {
			continue
		}
		ids = append(ids, qdrantPointID(ref.ChunkID, ref.Version))
	}

	req := struct {
		Points []string `json:"points"`
	}{Points: ids}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	return s.doJSON(ctx, http.MethodPost, path, req, &resp)
}

// Count 返回点总数.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// HealthCheck 探活.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant not ready: status=%d", resp.StatusCode)
	}
	return nil
}
