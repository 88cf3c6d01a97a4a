package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/store"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// Config 索引器配置。
type Config struct {
	// 指针翻转后延迟多久回收退役版本（给在途读留余量）。
	GCDelay time.Duration
	// 回收操作的超时。
	GCTimeout time.Duration
}

// DefaultConfig 返回默认索引器配置.
func DefaultConfig() Config {
	return Config{
		GCDelay:   2 * time.Second,
		GCTimeout: 30 * time.Second,
	}
}

// Result 一次索引提交的结果。
type Result struct {
	Status  types.IngestStatus
	Version int64
}

// Indexer 双存储索引器。
type Indexer struct {
	relational *store.RelationalStore
	vector     store.VectorStore
	cfg        Config
	logger     *zap.Logger

	locks *keyedMutex
	gcWG  sync.WaitGroup
}

// NewIndexer 创建双存储索引器.
func NewIndexer(relational *store.RelationalStore, vector store.VectorStore, cfg Config, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		relational: relational,
		vector:     vector,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "indexer")),
		locks:      newKeyedMutex(),
	}
}

// CheckCurrent 报告文档当前内容是否已是活动版本。
// 调用方在嵌入生成前调用，内容未变时整条流水线短路，绝不触发嵌入调用。
func (ix *Indexer) CheckCurrent(ctx context.Context, docID, contentHash string) (int64, bool, error) {
	version, hash, err := ix.relational.ActiveVersion(ctx, docID)
	if err != nil {
		return 0, false, types.NewError(types.ErrStoreUnavailable, "active version lookup failed").
			WithCause(err).WithDocumentID(docID)
	}
	return version, version > 0 && hash == contentHash, nil
}

// Index 把文档推进到新版本：要么两个存储的全部新版本行一起可见，
// 要么什么都不提交。
func (ix *Indexer) Index(ctx context.Context, doc *types.Document, chunks []types.Chunk, embeddings []types.Embedding) (*Result, error) {
	if doc == nil || doc.ID == "" {
		return nil, types.NewError(types.ErrMalformedInput, "index: document without id")
	}
	if len(chunks) != len(embeddings) {
		return nil, types.NewError(types.ErrIndexCommit,
			fmt.Sprintf("index: %d chunks but %d embeddings", len(chunks), len(embeddings))).
			WithDocumentID(doc.ID)
	}

	unlock := ix.locks.Lock(doc.ID)
	defer unlock()

	// 锁内复查：并发的同文档摄取可能已提交了相同内容。
	activeVersion, current, err := ix.CheckCurrent(ctx, doc.ID, doc.ContentHash)
	if err != nil {
		return nil, err
	}
	if current {
		ix.logger.Info("content unchanged, skipping",
			zap.String("document_id", doc.ID),
			zap.Int64("version", activeVersion))
		return &Result{Status: types.IngestSkipped, Version: activeVersion}, nil
	}

	newVersion := activeVersion + 1
	stamped := stampVersion(doc, chunks, newVersion)

	vectorByChunk := make(map[string][]float64, len(embeddings))
	model := ""
	for _, e := range embeddings {
		vectorByChunk[e.ChunkID] = e.Vector
		model = e.Model
	}
	points := make([]store.ChunkPoint, 0, len(stamped))
	for _, c := range stamped {
		vec, ok := vectorByChunk[c.ID]
		if !ok {
			return nil, types.NewError(types.ErrIndexCommit,
				fmt.Sprintf("index: chunk %s has no embedding", c.ID)).
				WithDocumentID(doc.ID)
		}
		points = append(points, store.ChunkPoint{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			Version:    newVersion,
			Model:      model,
			Vector:     vec,
		})
	}

	newRefs := make([]store.ChunkRef, 0, len(stamped))
	for _, c := range stamped {
		newRefs = append(newRefs, store.ChunkRef{ChunkID: c.ID, Version: newVersion})
	}

	// 阶段一：写入新版本行。指针未翻转前这些行对检索不可见。
	if err := ix.relational.InsertChunks(ctx, stamped); err != nil {
		ix.rollback(doc.ID, newVersion, nil)
		return nil, types.NewError(types.ErrIndexCommit, "chunk rows write failed").
			WithCause(err).WithDocumentID(doc.ID)
	}
	if err := ix.vector.Upsert(ctx, points); err != nil {
		ix.rollback(doc.ID, newVersion, newRefs)
		return nil, types.NewError(types.ErrIndexCommit, "vector points write failed").
			WithCause(err).WithDocumentID(doc.ID)
	}

	// 阶段二：事务内翻转版本指针。
	committed := *doc
	committed.Version = newVersion
	if committed.IngestedAt.IsZero() {
		committed.IngestedAt = time.Now().UTC()
	}
	if err := ix.relational.ActivateVersion(ctx, &committed); err != nil {
		ix.rollback(doc.ID, newVersion, newRefs)
		return nil, types.NewError(types.ErrIndexCommit, "version pointer flip failed").
			WithCause(err).WithDocumentID(doc.ID)
	}

	ix.logger.Info("document version committed",
		zap.String("document_id", doc.ID),
		zap.Int64("version", newVersion),
		zap.Int("chunks", len(stamped)))

	ix.scheduleGC(doc.ID, newVersion)

	return &Result{Status: types.IngestOK, Version: newVersion}, nil
}

// Close 等待所有在途回收完成。
func (ix *Indexer) Close() {
	ix.gcWG.Wait()
}

// rollback 删除提交失败的新版本行。旧版本从未被触碰，保持活动。
// vectorRefs 为 nil 表示向量点从未写入。
func (ix *Indexer) rollback(docID string, version int64, vectorRefs []store.ChunkRef) {
	ctx, cancel := context.WithTimeout(context.Background(), ix.gcTimeout())
	defer cancel()

	if err := ix.relational.DeleteChunkVersion(ctx, docID, version); err != nil {
		ix.logger.Error("rollback: chunk rows cleanup failed",
			zap.String("document_id", docID),
			zap.Int64("version", version),
			zap.Error(err))
	}
	if len(vectorRefs) == 0 {
		return
	}
	if err := ix.vector.Delete(ctx, vectorRefs); err != nil {
		ix.logger.Error("rollback: vector points cleanup failed",
			zap.String("document_id", docID),
			zap.Int64("version", version),
			zap.Error(err))
	}
}

// scheduleGC 异步回收退役版本：先删向量点，再删关系行。
func (ix *Indexer) scheduleGC(docID string, activeVersion int64) {
	ix.gcWG.Add(1)
	go func() {
		defer ix.gcWG.Done()

		if ix.cfg.GCDelay > 0 {
			time.Sleep(ix.cfg.GCDelay)
		}

		// 与同文档的在途提交互斥：锁外回收会删掉尚未翻转指针的新版本行。
		unlock := ix.locks.Lock(docID)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), ix.gcTimeout())
		defer cancel()

		// 回收期间新的提交可能又推进了版本，以当下的活动版本为准。
		currentVersion, _, err := ix.relational.ActiveVersion(ctx, docID)
		if err != nil {
			ix.logger.Warn("gc: active version lookup failed",
				zap.String("document_id", docID), zap.Error(err))
			return
		}
		if currentVersion != activeVersion {
			return
		}

		retired, err := ix.relational.RetiredChunks(ctx, docID, activeVersion)
		if err != nil {
			ix.logger.Warn("gc: retired chunk listing failed",
				zap.String("document_id", docID), zap.Error(err))
			return
		}
		if len(retired) == 0 {
			return
		}

		if err := ix.vector.Delete(ctx, retired); err != nil {
			ix.logger.Warn("gc: vector points delete failed",
				zap.String("document_id", docID), zap.Error(err))
			return
		}
		if err := ix.relational.DeleteRetired(ctx, docID, activeVersion); err != nil {
			ix.logger.Warn("gc: chunk rows delete failed",
				zap.String("document_id", docID), zap.Error(err))
			return
		}

		ix.logger.Debug("retired version collected",
			zap.String("document_id", docID),
			zap.Int("chunks", len(retired)))
	}()
}

func (ix *Indexer) gcTimeout() time.Duration {
	if ix.cfg.GCTimeout > 0 {
		return ix.cfg.GCTimeout
	}
	return 30 * time.Second
}

// stampVersion 复制块并统一盖上新版本号，保证 chunks/vectors 行对
// 共享相同 version 与 document_id。
func stampVersion(doc *types.Document, chunks []types.Chunk, version int64) []types.Chunk {
	stamped := make([]types.Chunk, len(chunks))
	for i, c := range chunks {
		c.DocumentID = doc.ID
		c.Version = version
		stamped[i] = c
	}
	return stamped
}
