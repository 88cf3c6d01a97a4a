package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
)

var _ Provider = (*JinaProvider)(nil)

// JinaProvider 基于 Jina AI rerank API 的实现。
type JinaProvider struct {
	cfg    config.RerankConfig
	client *http.Client
}

// NewJinaProvider 创建 Jina 重排提供者.
func NewJinaProvider(cfg config.RerankConfig) *JinaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jina.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "jina-reranker-v2-base-multilingual"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JinaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *JinaProvider) Name() string      { return "jina-rerank" }
func (p *JinaProvider) MaxDocuments() int { return 1024 }

type jinaRequest struct {
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	Model           string   `json:"model"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

type jinaResponse struct {
	Model   string `json:"model"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank 按相关性重排文档.
func (p *JinaProvider) Rerank(ctx context.Context, req *Request) ([]Result, error) {
	if len(req.Documents) == 0 {
		return nil, nil
	}
	if len(req.Documents) > p.MaxDocuments() {
		return nil, fmt.Errorf("jina rerank: %d documents exceeds limit %d", len(req.Documents), p.MaxDocuments())
	}

	body := jinaRequest{
		Query:     req.Query,
		Documents: req.Documents,
		Model:     p.cfg.Model,
		TopN:      req.TopN,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/rerank",
		bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jina rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jina rerank error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var apiResp jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("jina rerank: malformed response: %w", err)
	}

	results := make([]Result, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		if r.Index < 0 || r.Index >= len(req.Documents) {
			return nil, fmt.Errorf("jina rerank: result index %d out of range", r.Index)
		}
		results = append(results, Result{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	return results, nil
}
