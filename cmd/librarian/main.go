// Copyright 2025-2026 The Librarian Authors. All rights reserved.
// Use of this source code is governed by the project license.

// librarian 启动图书馆服务：摄取、检索与有据问答的 HTTP 入口。
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AndreF343/Warhammer40K-The-Librarian/agent"
	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/embedding"
	"github.com/AndreF343/Warhammer40K-The-Librarian/index"
	"github.com/AndreF343/Warhammer40K-The-Librarian/ingest"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/cache"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/database"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/metrics"
	"github.com/AndreF343/Warhammer40K-The-Librarian/internal/server"
	"github.com/AndreF343/Warhammer40K-The-Librarian/librarian"
	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/rerank"
	"github.com/AndreF343/Warhammer40K-The-Librarian/retrieval"
	"github.com/AndreF343/Warhammer40K-The-Librarian/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithEnvPrefix("LIBRARIAN").
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("librarian exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// 关系存储
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger)
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer func() { _ = pool.Close() }()

	relational := store.NewRelationalStore(db, logger)
	if err := relational.Migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	// 向量存储：未配置 Qdrant 主机时退化为进程内存储（本地试验模式）
	var vector store.VectorStore
	if cfg.Qdrant.Host != "" {
		vector = store.NewQdrantStore(cfg.Qdrant, cfg.Embedding.Dimensions, logger)
	} else {
		logger.Warn("qdrant host not configured, using in-memory vector store")
		vector = store.NewMemoryVectorStore()
	}

	// 查询向量缓存（可选）
	var cacheMgr *cache.Manager
	if cfg.Redis.Enabled {
		cacheMgr = cache.NewManager(cfg.Redis, logger)
		defer func() { _ = cacheMgr.Close() }()
	}

	// 摄取流水线
	var tokenizer ingest.Tokenizer = ingest.EstimatorTokenizer{}
	if cfg.Chunking.Encoding != "" {
		tokenizer = ingest.NewTiktokenTokenizer(cfg.Chunking.Encoding)
	}
	generator := embedding.NewGenerator(cfg.Embedding, embedding.NewOpenAIProvider(cfg.Embedding), logger)
	indexer := index.NewIndexer(relational, vector, index.DefaultConfig(), logger)
	defer indexer.Close()

	// 检索与回答
	var reranker rerank.Provider
	if cfg.Rerank.Enabled {
		reranker = rerank.NewJinaProvider(cfg.Rerank)
	}
	embedder := librarian.NewCachedQueryEmbedder(generator, cacheMgr, logger)
	retriever := retrieval.NewRetriever(cfg.Retrieval, relational, vector, embedder, reranker, logger)
	expander := retrieval.NewExpander(relational, cfg.Retrieval.MaxExpandPerChunk, logger)
	loop := agent.NewLoop(cfg.Agent, cfg.Retrieval.MinScore, retriever, expander, llm.NewOpenAIProvider(cfg.LLM), logger)

	collector := metrics.NewCollector("librarian", prometheus.DefaultRegisterer)
	retriever.SetMetrics(collector)
	loop.SetMetrics(collector)

	svc := librarian.NewService(librarian.Deps{
		Normalizer: ingest.NewNormalizer(logger),
		Chunker:    ingest.NewChunker(cfg.Chunking, tokenizer, logger),
		Generator:  generator,
		Indexer:    indexer,
		Loop:       loop,
		Metrics:    collector,
		Cache:      cacheMgr,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	h := &handler{service: svc, pool: pool, vector: vector, logger: logger}
	mux.HandleFunc("POST /v1/ingest", h.ingest)
	mux.HandleFunc("POST /v1/ingest/batch", h.ingestBatch)
	mux.HandleFunc("POST /v1/answer", h.answer)
	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := server.NewManager(mux, cfg.Server, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	srv.WaitForShutdown()
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
