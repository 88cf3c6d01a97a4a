package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/ingest"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/database"
	"github.com/AndreF343/Warhammer40K-The-Librarian/librarian"
	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/store"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// maxRequestBody 限制请求体大小，防止超大页面拖垮进程。
const maxRequestBody = 8 << 20 // 8 MB

type handler struct {
	service *librarian.Service
	pool    *database.PoolManager
	vector  store.VectorStore
	logger  *zap.Logger
}

type answerRequest struct {
	Question     string        `json:"question"`
	Conversation []llm.Message `json:"conversation,omitempty"`
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var page ingest.RawPage
	if !h.decode(w, r, &page) {
		return
	}

	ack, err := h.service.Ingest(r.Context(), page)
	if err != nil {
		h.writeError(w, err, ack)
		return
	}
	h.writeJSON(w, http.StatusOK, ack)
}

func (h *handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var pages []ingest.RawPage
	if !h.decode(w, r, &pages) {
		return
	}

	acks := h.service.IngestBatch(r.Context(), pages)
	h.writeJSON(w, http.StatusOK, acks)
}

func (h *handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}

	answer, err := h.service.Answer(r.Context(), req.Question, req.Conversation...)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pool.Ping(ctx); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
		return
	}
	if err := h.vector.HealthCheck(ctx); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "vector": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":    string(types.ErrMalformedInput),
			"message": "invalid request body",
		})
		return false
	}
	return true
}

// writeError 把内部错误码映射为 HTTP 状态。payload 非 nil 时一并返回
// （摄取失败仍返回带 error 状态的 ack）。
func (h *handler) writeError(w http.ResponseWriter, err error, payload any) {
	code := types.GetErrorCode(err)
	status := httpStatusFor(code)

	h.logger.Warn("request failed",
		zap.String("code", string(code)),
		zap.Int("status", status),
		zap.Error(err))

	body := map[string]any{
		"code":    string(code),
		"message": err.Error(),
	}
	if payload != nil {
		body["ack"] = payload
	}
	h.writeJSON(w, status, body)
}

func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrMalformedInput, types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrCancelled:
		return 499 // client closed request
	case types.ErrUpstreamTimeout, types.ErrRetrievalTimeout:
		return http.StatusGatewayTimeout
	case types.ErrEmbeddingProvider, types.ErrUpstreamError:
		return http.StatusBadGateway
	case types.ErrStoreUnavailable, types.ErrIndexCommit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response failed", zap.Error(err))
	}
}
