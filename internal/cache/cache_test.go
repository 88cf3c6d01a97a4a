package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m := NewManager(config.RedisConfig{
		Enabled:    true,
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func TestQueryVectorRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	vec := []float64{0.25, -0.5, 1.0}
	require.NoError(t, m.SetQueryVector(ctx, "text-embedding-3-small", "who is roboute guilliman", vec))

	got, err := m.GetQueryVector(ctx, "text-embedding-3-small", "who is roboute guilliman")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestQueryVectorMiss(t *testing.T) {
	m, _ := newTestManager(t)

	got, err := m.GetQueryVector(context.Background(), "text-embedding-3-small", "never asked")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryVectorKeyedByModel(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetQueryVector(ctx, "model-a", "same question", []float64{1}))

	got, err := m.GetQueryVector(ctx, "model-b", "same question")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryVectorExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetQueryVector(ctx, "m", "q", []float64{1, 2}))
	mr.FastForward(2 * time.Minute)

	got, err := m.GetQueryVector(ctx, "m", "q")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptEntryTreatedAsMiss(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetQueryVector(ctx, "m", "q", []float64{1}))
	mr.Set(queryVectorKey("m", "q"), "not-json")

	got, err := m.GetQueryVector(ctx, "m", "q")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnswerRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	got, err := m.GetAnswer(ctx, "who rules macragge")
	require.NoError(t, err)
	assert.Empty(t, got)

	payload := `{"text":"Macragge is ruled in Guilliman's name.","outcome":"answered"}`
	require.NoError(t, m.SetAnswer(ctx, "who rules macragge", payload))

	got, err = m.GetAnswer(ctx, "who rules macragge")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClosedManagerRejectsCalls(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Close())

	_, err := m.GetQueryVector(context.Background(), "m", "q")
	assert.Error(t, err)
	assert.Error(t, m.SetQueryVector(context.Background(), "m", "q", []float64{1}))
	assert.NoError(t, m.Close())
}
