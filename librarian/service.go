package librarian

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AndreF343/Warhammer40K-The-Librarian/agent"
	"github.com/AndreF343/Warhammer40K-The-Librarian/embedding"
	"github.com/AndreF343/Warhammer40K-The-Librarian/index"
	"github.com/AndreF343/Warhammer40K-The-Librarian/ingest"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/cache"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/metrics"
	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// =============================================================================
// 📚 服务门面
// =============================================================================

// defaultBatchConcurrency 批量摄取的文档级并行度。
const defaultBatchConcurrency = 4

// Deps Service 的依赖集合。Metrics 与 Cache 可为 nil。
type Deps struct {
	Normalizer *ingest.Normalizer
	Chunker    *ingest.Chunker
	Generator  *embedding.Generator
	Indexer    *index.Indexer
	Loop       *agent.Loop
	Metrics    *metrics.Collector
	Cache      *cache.Manager
	Logger     *zap.Logger
}

// Service 图书馆服务门面。
type Service struct {
	normalizer *ingest.Normalizer
	chunker    *ingest.Chunker
	generator  *embedding.Generator
	indexer    *index.Indexer
	loop       *agent.Loop
	metrics    *metrics.Collector
	cache      *cache.Manager
	logger     *zap.Logger

	batchConcurrency int
}

// NewService 创建服务门面.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		normalizer:       deps.Normalizer,
		chunker:          deps.Chunker,
		generator:        deps.Generator,
		indexer:          deps.Indexer,
		loop:             deps.Loop,
		metrics:          deps.Metrics,
		cache:            deps.Cache,
		logger:           logger.With(zap.String("component", "librarian")),
		batchConcurrency: defaultBatchConcurrency,
	}
}

// Ingest 摄取单篇页面。内容未变化时返回 skipped，不产生任何写入。
// 失败时 ack 的状态为 error，err 携带错误码。
func (s *Service) Ingest(ctx context.Context, page ingest.RawPage) (types.IngestAck, error) {
	start := time.Now()

	doc, err := s.normalizer.Normalize(page)
	if err != nil {
		s.observeIngest(types.IngestError, 0, start)
		return types.IngestAck{Status: types.IngestError, DocumentID: types.Slugify(page.Title)}, err
	}

	// 嵌入是最贵的一步，幂等检查必须先于它。
	version, current, err := s.indexer.CheckCurrent(ctx, doc.ID, doc.ContentHash)
	if err != nil {
		s.observeIngest(types.IngestError, 0, start)
		return types.IngestAck{Status: types.IngestError, DocumentID: doc.ID}, err
	}
	if current {
		s.logger.Debug("document unchanged, skipping",
			zap.String("document_id", doc.ID),
			zap.Int64("version", version))
		s.observeIngest(types.IngestSkipped, 0, start)
		return types.IngestAck{Status: types.IngestSkipped, DocumentID: doc.ID, Version: version}, nil
	}

	chunks := s.chunker.ChunkDocument(doc)
	if len(chunks) == 0 {
		err := types.NewError(types.ErrMalformedInput, "ingest: document produced no chunks").
			WithDocumentID(doc.ID)
		s.observeIngest(types.IngestError, 0, start)
		return types.IngestAck{Status: types.IngestError, DocumentID: doc.ID}, err
	}

	embeddings, err := s.generator.GenerateChunkEmbeddings(ctx, chunks)
	if err != nil {
		s.observeEmbedding("error", chunks)
		s.observeIngest(types.IngestError, 0, start)
		return types.IngestAck{Status: types.IngestError, DocumentID: doc.ID}, err
	}
	s.observeEmbedding("ok", chunks)

	res, err := s.indexer.Index(ctx, doc, chunks, embeddings)
	if err != nil {
		s.observeIngest(types.IngestError, 0, start)
		return types.IngestAck{Status: types.IngestError, DocumentID: doc.ID}, err
	}

	s.observeIngest(res.Status, len(chunks), start)
	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int64("version", res.Version),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))

	return types.IngestAck{Status: res.Status, DocumentID: doc.ID, Version: res.Version}, nil
}

// IngestBatch 并行摄取一批页面。单篇失败只记录并计入结果，
// 不中断其余文档。返回切片与 pages 一一对应。
func (s *Service) IngestBatch(ctx context.Context, pages []ingest.RawPage) []types.IngestAck {
	acks := make([]types.IngestAck, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			ack, err := s.Ingest(gctx, page)
			if err != nil {
				s.logger.Warn("batch ingest: document failed",
					zap.String("title", page.Title),
					zap.String("code", string(types.GetErrorCode(err))),
					zap.Error(err))
			}
			acks[i] = ack
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return acks
}

// Answer 回答一个问题。输入校验失败原样返回；其余内部异常
// 记录日志并降级为拒答，结局恒为 answered / refused / cancelled。
func (s *Service) Answer(ctx context.Context, question string, conversation ...llm.Message) (*types.Answer, error) {
	start := time.Now()

	// 独立问题（无会话上下文）可命中回答缓存。
	if cached := s.cachedAnswer(ctx, question, conversation); cached != nil {
		if s.metrics != nil {
			s.metrics.ObserveQuery(string(cached.Outcome), time.Since(start))
		}
		return cached, nil
	}

	answer, err := s.loop.Answer(ctx, question, conversation...)
	if err != nil {
		if types.IsCode(err, types.ErrMalformedInput) {
			return nil, err
		}
		s.logger.Error("agent loop failed, refusing",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		answer = &types.Answer{Text: agent.RefusalText, Outcome: types.OutcomeRefused}
	}

	if s.metrics != nil {
		s.metrics.ObserveQuery(string(answer.Outcome), time.Since(start))
	}
	s.storeAnswer(ctx, question, conversation, answer)
	return answer, nil
}

// cachedAnswer 返回缓存命中的回答，未命中返回 nil。缓存故障只记日志。
func (s *Service) cachedAnswer(ctx context.Context, question string, conversation []llm.Message) *types.Answer {
	if s.cache == nil || len(conversation) > 0 {
		return nil
	}
	raw, err := s.cache.GetAnswer(ctx, question)
	if err != nil {
		s.logger.Warn("answer cache read failed", zap.Error(err))
		return nil
	}
	if raw == "" {
		return nil
	}
	var answer types.Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		s.logger.Warn("corrupt cached answer discarded", zap.Error(err))
		return nil
	}
	return &answer
}

// storeAnswer 缓存成功回答。拒答不缓存：证据可能随新摄取出现。
func (s *Service) storeAnswer(ctx context.Context, question string, conversation []llm.Message, answer *types.Answer) {
	if s.cache == nil || len(conversation) > 0 || answer.Outcome != types.OutcomeAnswered {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := s.cache.SetAnswer(ctx, question, string(raw)); err != nil {
		s.logger.Warn("answer cache write failed", zap.Error(err))
	}
}

func (s *Service) observeIngest(status types.IngestStatus, chunks int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveIngest(string(status), chunks, time.Since(start))
}

func (s *Service) observeEmbedding(result string, chunks []types.Chunk) {
	if s.metrics == nil {
		return
	}
	tokens := 0
	for _, c := range chunks {
		tokens += c.TokenCount
	}
	s.metrics.ObserveEmbedding(result, tokens)
}
