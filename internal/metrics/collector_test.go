package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector()

	require.NotNil(t, c)
	assert.NotNil(t, c.documentsIngested)
	assert.NotNil(t, c.chunksIndexed)
	assert.NotNil(t, c.embeddingCalls)
	assert.NotNil(t, c.retrievalSourceDuration)
	assert.NotNil(t, c.queriesTotal)
	assert.NotNil(t, c.toolCalls)
}

func TestCollector_ObserveIngest(t *testing.T) {
	c := newTestCollector()

	c.ObserveIngest("ok", 12, 250*time.Millisecond)
	c.ObserveIngest("ok", 3, 80*time.Millisecond)
	c.ObserveIngest("error", 0, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.documentsIngested.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.documentsIngested.WithLabelValues("error")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.chunksIndexed))
}

func TestCollector_ObserveEmbedding(t *testing.T) {
	c := newTestCollector()

	c.ObserveEmbedding("ok", 480)
	c.ObserveEmbedding("error", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.embeddingCalls.WithLabelValues("ok")))
	assert.Equal(t, 480.0, testutil.ToFloat64(c.embeddingTokens))
}

func TestCollector_RetrievalSources(t *testing.T) {
	c := newTestCollector()

	c.ObserveRetrievalSource("lexical", 5*time.Millisecond)
	c.ObserveRetrievalSource("vector", 20*time.Millisecond)
	c.RetrievalSourceDegraded("vector")

	assert.Greater(t, testutil.CollectAndCount(c.retrievalSourceDuration), 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retrievalSourceDegraded.WithLabelValues("vector")))
}

func TestCollector_QueriesAndTools(t *testing.T) {
	c := newTestCollector()

	c.ObserveQuery("answered", 300*time.Millisecond)
	c.ObserveQuery("refused", 50*time.Millisecond)
	c.ToolCall("hybrid_search")
	c.ToolCall("hybrid_search")
	c.ToolCall("graph_lookup")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("refused")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("hybrid_search")))
}
