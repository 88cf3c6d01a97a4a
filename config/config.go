package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 是 Librarian 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database 关系存储配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Qdrant 向量存储配置
	Qdrant QdrantConfig `yaml:"qdrant" env:"QDRANT"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Chunking 分块配置
	Chunking ChunkingConfig `yaml:"chunking" env:"CHUNKING"`

	// Embedding 嵌入服务配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Retrieval 混合检索配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Rerank 重排序服务配置
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// Agent 回答代理配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// LLM 回答模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig 关系存储配置
type DatabaseConfig struct {
	// 驱动类型: postgres, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 驱动下为文件路径，":memory:" 为内存库）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// QdrantConfig 向量存储配置
type QdrantConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// REST 端口
	Port int `yaml:"port" env:"PORT"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig 缓存配置
type RedisConfig struct {
	// 是否启用缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	// 块大小上限（tokens）
	MaxChunkSize int `yaml:"max_chunk_size" env:"MAX_CHUNK_SIZE"`
	// 相邻块重叠下限（tokens）
	Overlap int `yaml:"overlap" env:"OVERLAP"`
	// 分词编码（tiktoken），留空则退化为启发式估算
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	// 服务基础 URL（OpenAI 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 单次请求批大小上限
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 并发批请求上限
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 每秒请求上限（对外部服务保持礼貌）
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RetrievalConfig 混合检索配置
type RetrievalConfig struct {
	// 最终返回条数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 送入重排的候选条数（须大于 TopK）
	CandidateK int `yaml:"candidate_k" env:"CANDIDATE_K"`
	// 各来源融合权重
	LexicalWeight float64 `yaml:"lexical_weight" env:"LEXICAL_WEIGHT"`
	VectorWeight  float64 `yaml:"vector_weight" env:"VECTOR_WEIGHT"`
	GraphWeight   float64 `yaml:"graph_weight" env:"GRAPH_WEIGHT"`
	// 单个来源的超时（超时降级为空结果而非整体失败）
	SourceTimeout time.Duration `yaml:"source_timeout" env:"SOURCE_TIMEOUT"`
	// 相关性阈值（融合归一化分数下限）
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
	// 上下文扩展：单个原始块最多扩展到的相邻块数
	MaxExpandPerChunk int `yaml:"max_expand_per_chunk" env:"MAX_EXPAND_PER_CHUNK"`
}

// RerankConfig 重排序服务配置（可缺省，缺省时按融合分序直接返回）
type RerankConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 服务基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AgentConfig 回答代理配置
type AgentConfig struct {
	// 单个问题的工具调用预算
	ToolBudget int `yaml:"tool_budget" env:"TOOL_BUDGET"`
	// 单个问题的总超时
	QueryTimeout time.Duration `yaml:"query_timeout" env:"QUERY_TIMEOUT"`
}

// LLMConfig 回答模型配置
type LLMConfig struct {
	// 服务基础 URL（OpenAI 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Chunking.MaxChunkSize <= 0 {
		errs = append(errs, "chunking.max_chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		errs = append(errs, "chunking.overlap must be in [0, max_chunk_size)")
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, "embedding.batch_size must be positive")
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, "embedding.concurrency must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval.top_k must be positive")
	}
	if c.Retrieval.CandidateK < c.Retrieval.TopK {
		errs = append(errs, "retrieval.candidate_k must be >= top_k")
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 || c.Retrieval.GraphWeight < 0 {
		errs = append(errs, "retrieval fusion weights must be non-negative")
	}
	if c.Retrieval.LexicalWeight+c.Retrieval.VectorWeight+c.Retrieval.GraphWeight == 0 {
		errs = append(errs, "at least one retrieval fusion weight must be positive")
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, "retrieval.min_score must be in [0, 1]")
	}
	if c.Agent.ToolBudget <= 0 {
		errs = append(errs, "agent.tool_budget must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
