package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

const (
	openAIDefaultBaseURL  = "https://api.openai.com"
	openAIDefaultModel    = "text-embedding-3-small"
	openAIDefaultDims     = 1536
	openAIDefaultMaxBatch = 100
)

// OpenAIProvider 是兼容 OpenAI /v1/embeddings 协议的提供者.
type OpenAIProvider struct {
	*BaseProvider
}

// NewOpenAIProvider 创建一个 OpenAI 兼容的嵌入提供者.
func NewOpenAIProvider(cfg config.EmbeddingConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIDefaultDims
	}
	maxBatch := cfg.BatchSize
	if maxBatch == 0 {
		maxBatch = openAIDefaultMaxBatch
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "openai",
			BaseURL:    baseURL,
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: dims,
			MaxBatch:   maxBatch,
			Timeout:    cfg.Timeout,
		}),
	}
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 为给定输入生成嵌入.
func (p *OpenAIProvider) Embed(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Input) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "embed: empty input").WithProvider(p.Name())
	}
	if len(req.Input) > p.MaxBatchSize() {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("embed: batch size %d exceeds limit %d", len(req.Input), p.MaxBatchSize())).
			WithProvider(p.Name())
	}

	model := req.Model
	if model == "" {
		model = p.Model()
	}

	body := openAIEmbedRequest{Input: req.Input, Model: model}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	respBody, err := p.DoRequest(ctx, http.MethodPost, "/v1/embeddings", body, headers)
	if err != nil {
		return nil, err
	}

	var apiResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embed: malformed response").
			WithCause(err).WithProvider(p.Name()).WithRetryable(true)
	}

	// 提供者不保证返回顺序，按索引恢复与输入的对应关系。
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	embeddings := make([]Data, len(apiResp.Data))
	for i, d := range apiResp.Data {
		embeddings[i] = Data{Index: d.Index, Embedding: d.Embedding}
	}

	return &Response{
		Provider:   p.Name(),
		Model:      apiResp.Model,
		Embeddings: embeddings,
		Usage: Usage{
			PromptTokens: apiResp.Usage.PromptTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// EmbedQuery 嵌入单个查询文本.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	resp, err := p.Embed(ctx, &Request{Input: []string{query}, InputType: InputTypeQuery})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != 1 {
		return nil, types.NewError(types.ErrProviderMismatch,
			fmt.Sprintf("embed query: expected 1 embedding, got %d", len(resp.Embeddings))).
			WithProvider(p.Name())
	}
	return resp.Embeddings[0].Embedding, nil
}
