package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 摄取指标
	documentsIngested *prometheus.CounterVec
	chunksIndexed     prometheus.Counter
	ingestDuration    prometheus.Histogram

	// 嵌入指标
	embeddingCalls  *prometheus.CounterVec
	embeddingTokens prometheus.Counter

	// 检索指标
	retrievalSourceDuration *prometheus.HistogramVec
	retrievalSourceDegraded *prometheus.CounterVec

	// 回答指标
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
	toolCalls     *prometheus.CounterVec
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		documentsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Total number of documents ingested, by status",
			},
			[]string{"status"},
		),
		chunksIndexed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Total number of chunks committed to the stores",
			},
		),
		ingestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "End-to-end ingest pipeline duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		embeddingCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_calls_total",
				Help:      "Total number of embedding provider calls, by result",
			},
			[]string{"result"},
		),
		embeddingTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_tokens_total",
				Help:      "Total tokens sent to the embedding provider",
			},
		),
		retrievalSourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_source_duration_seconds",
				Help:      "Per-source retrieval duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		retrievalSourceDegraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_source_degraded_total",
				Help:      "Retrieval source timeouts/failures degraded to empty results",
			},
			[]string{"source"},
		),
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total answered queries, by outcome",
			},
			[]string{"outcome"},
		),
		queryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End-to-end answer loop duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tool_calls_total",
				Help:      "Agent tool invocations, by tool",
			},
			[]string{"tool"},
		),
	}
}

// ObserveIngest 记录一次文档摄取。
func (c *Collector) ObserveIngest(status string, chunks int, duration time.Duration) {
	c.documentsIngested.WithLabelValues(status).Inc()
	if chunks > 0 {
		c.chunksIndexed.Add(float64(chunks))
	}
	c.ingestDuration.Observe(duration.Seconds())
}

// ObserveEmbedding 记录一次嵌入提供者调用。
func (c *Collector) ObserveEmbedding(result string, tokens int) {
	c.embeddingCalls.WithLabelValues(result).Inc()
	if tokens > 0 {
		c.embeddingTokens.Add(float64(tokens))
	}
}

// ObserveRetrievalSource 记录单个检索来源的耗时。
func (c *Collector) ObserveRetrievalSource(source string, duration time.Duration) {
	c.retrievalSourceDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RetrievalSourceDegraded 记录一次来源降级。
func (c *Collector) RetrievalSourceDegraded(source string) {
	c.retrievalSourceDegraded.WithLabelValues(source).Inc()
}

// ObserveQuery 记录一次回答循环。
func (c *Collector) ObserveQuery(outcome string, duration time.Duration) {
	c.queriesTotal.WithLabelValues(outcome).Inc()
	c.queryDuration.Observe(duration.Seconds())
}

// ToolCall 记录一次工具调用。
func (c *Collector) ToolCall(tool string) {
	c.toolCalls.WithLabelValues(tool).Inc()
}
