// =============================================================================
// 📦 Librarian 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Qdrant:    DefaultQdrantConfig(),
		Redis:     DefaultRedisConfig(),
		Chunking:  DefaultChunkingConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Rerank:    DefaultRerankConfig(),
		Agent:     DefaultAgentConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认关系存储配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "librarian",
		Name:            "librarian",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultQdrantConfig 返回默认向量存储配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:       "localhost",
		Port:       6333,
		Collection: "librarian_chunks",
		Timeout:    30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认缓存配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:    false,
		Addr:       "localhost:6379",
		DB:         0,
		DefaultTTL: 10 * time.Minute,
	}
}

// DefaultChunkingConfig 返回默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxChunkSize: 512,
		Overlap:      64,
		Encoding:     "cl100k_base",
	}
}

// DefaultEmbeddingConfig 返回默认嵌入服务配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:           "https://api.openai.com",
		Model:             "text-embedding-3-small",
		Dimensions:        1536,
		BatchSize:         64,
		Concurrency:       4,
		RequestsPerSecond: 1.0,
		MaxRetries:        6,
		InitialBackoff:    2 * time.Second,
		Timeout:           30 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认混合检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:              5,
		CandidateK:        25,
		LexicalWeight:     0.3,
		VectorWeight:      0.5,
		GraphWeight:       0.2,
		SourceTimeout:     5 * time.Second,
		MinScore:          0.25,
		MaxExpandPerChunk: 2,
	}
}

// DefaultRerankConfig 返回默认重排序配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Enabled: false,
		BaseURL: "https://api.jina.ai",
		Model:   "jina-reranker-v2-base-multilingual",
		Timeout: 15 * time.Second,
	}
}

// DefaultAgentConfig 返回默认回答代理配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ToolBudget:   6,
		QueryTimeout: 60 * time.Second,
	}
}

// DefaultLLMConfig 返回默认回答模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		Timeout:     60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
