package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/retrieval"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// fakeSearcher 记录每次调用的来源，按预设返回结果。
type fakeSearcher struct {
	calls  [][]types.RetrievalSource
	hybrid []types.FusedResult
	graph  []types.FusedResult
	err    error
}

func (f *fakeSearcher) Retrieve(_ context.Context, _ string, sources ...types.RetrievalSource) ([]types.FusedResult, error) {
	f.calls = append(f.calls, sources)
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range sources {
		if s == types.SourceGraph {
			return f.graph, nil
		}
	}
	return f.hybrid, nil
}

// passthroughExpander 不查库，原样包装结果。
type passthroughExpander struct{}

func (passthroughExpander) Expand(_ context.Context, results []types.FusedResult) ([]retrieval.Evidence, error) {
	out := make([]retrieval.Evidence, 0, len(results))
	for _, r := range results {
		out = append(out, retrieval.Evidence{FusedResult: r})
	}
	return out, nil
}

// fakeChat 可注入内容、延迟与失败的对话提供者。
type fakeChat struct {
	content string
	delay   time.Duration
	err     error
	calls   int
}

func (f *fakeChat) Chat(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Provider: "fake", Model: "fake-chat", Content: f.content}, nil
}

func (f *fakeChat) Name() string  { return "fake" }
func (f *fakeChat) Model() string { return "fake-chat" }

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{ToolBudget: 6, QueryTimeout: 5 * time.Second}
}

func fusedResult(docID string, chunkIdx int, score float64) types.FusedResult {
	return types.FusedResult{
		Chunk: types.Chunk{
			ID:          types.ChunkID(docID, 0, chunkIdx),
			DocumentID:  docID,
			Version:     1,
			SectionPath: []string{"Overview"},
			ChunkIdx:    chunkIdx,
			Text:        "Terra is the throneworld of the Imperium.",
		},
		FusedScore: score,
		SourceScores: map[types.RetrievalSource]float64{
			types.SourceLexical: score,
		},
		IngestedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAnswerWithEvidence(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	chat := &fakeChat{content: "Terra is the throneworld of the Imperium. [1]"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAnswered, answer.Outcome)
	assert.Contains(t, answer.Text, "throneworld")
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, "terra", answer.Citations[0].DocumentID)
	assert.Equal(t, []string{"Overview"}, answer.Citations[0].SectionPath)
}

func TestRefusesWhenAllSourcesEmpty(t *testing.T) {
	searcher := &fakeSearcher{}
	chat := &fakeChat{content: "should never be called"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "Who rules the Tau Empire?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)
	assert.Equal(t, RefusalText, answer.Text)
	assert.Empty(t, answer.Citations)
	// 无证据时绝不触碰回答模型。
	assert.Zero(t, chat.calls)
}

func TestRefusesBelowThreshold(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.1)}}
	chat := &fakeChat{content: "should never be called"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)
	assert.Zero(t, chat.calls)
}

func TestFixedToolOrder(t *testing.T) {
	searcher := &fakeSearcher{
		hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)},
		graph:  []types.FusedResult{fusedResult("macragge", 0, 0.2)},
	}
	chat := &fakeChat{content: "Terra. [1]"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	_, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)

	// 首个调用必须是词法+向量混合检索，graph 只在其后。
	require.Len(t, searcher.calls, 2)
	assert.Equal(t, []types.RetrievalSource{types.SourceLexical, types.SourceVector}, searcher.calls[0])
	assert.Equal(t, []types.RetrievalSource{types.SourceGraph}, searcher.calls[1])
}

func TestGraphSkippedWithoutPriorResults(t *testing.T) {
	searcher := &fakeSearcher{graph: []types.FusedResult{fusedResult("macragge", 0, 1.0)}}
	chat := &fakeChat{content: "should never be called"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "Where is Macragge?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)

	// 混合检索空手而归：graph 不允许执行，循环直接进入证据检查。
	require.Len(t, searcher.calls, 1)
	assert.Equal(t, []types.RetrievalSource{types.SourceLexical, types.SourceVector}, searcher.calls[0])
}

func TestToolBudgetLimitsCalls(t *testing.T) {
	searcher := &fakeSearcher{
		hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)},
		graph:  []types.FusedResult{fusedResult("macragge", 0, 0.2)},
	}
	chat := &fakeChat{content: "Terra. [1]"}
	cfg := testAgentConfig()
	cfg.ToolBudget = 1
	loop := NewLoop(cfg, 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	// 预算 1：只有必需的混合检索执行，graph 被跳过，但证据足够仍可作答。
	assert.Equal(t, types.OutcomeAnswered, answer.Outcome)
	assert.Len(t, searcher.calls, 1)
}

func TestZeroBudgetForcesRefusal(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	chat := &fakeChat{content: "should never be called"}
	cfg := testAgentConfig()
	cfg.ToolBudget = 0
	loop := NewLoop(cfg, 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)
	assert.Empty(t, searcher.calls)
	assert.Zero(t, chat.calls)
}

func TestCancelledBeforeStart(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, &fakeChat{content: "x"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := loop.Answer(ctx, "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCancelled, answer.Outcome)
	assert.Empty(t, answer.Text)
	assert.Empty(t, answer.Citations)
}

func TestCancelledDuringSynthesis(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	chat := &fakeChat{content: "Terra. [1]", delay: time.Second}
	cfg := testAgentConfig()
	cfg.QueryTimeout = 100 * time.Millisecond
	loop := NewLoop(cfg, 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	// 合成中途超时：结局是 cancelled，绝无部分答案。
	assert.Equal(t, types.OutcomeCancelled, answer.Outcome)
	assert.Empty(t, answer.Text)
}

// blockingSearcher 阻塞到上下文终止，按检索器的降级语义返回 CANCELLED。
type blockingSearcher struct{}

func (blockingSearcher) Retrieve(ctx context.Context, _ string, _ ...types.RetrievalSource) ([]types.FusedResult, error) {
	<-ctx.Done()
	return nil, types.NewError(types.ErrCancelled, "retrieve aborted").WithCause(ctx.Err())
}

func TestCancelledDuringToolExecution(t *testing.T) {
	chat := &fakeChat{content: "should never be called"}
	cfg := testAgentConfig()
	cfg.QueryTimeout = 100 * time.Millisecond
	loop := NewLoop(cfg, 0.25, blockingSearcher{}, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	// 检索中途超时：结局是 cancelled，不是拒答。
	assert.Equal(t, types.OutcomeCancelled, answer.Outcome)
	assert.Empty(t, answer.Text)
	assert.Zero(t, chat.calls)
}

func TestModelDeclinesWithRefusalText(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	chat := &fakeChat{content: RefusalText}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)
	assert.Empty(t, answer.Citations)
}

func TestSynthesisFailureDegradesToRefusal(t *testing.T) {
	searcher := &fakeSearcher{hybrid: []types.FusedResult{fusedResult("terra", 0, 0.8)}}
	chat := &fakeChat{err: errors.New("chat provider down")}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "What is Terra?")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRefused, answer.Outcome)
	assert.Equal(t, RefusalText, answer.Text)
}

func TestEmptyQuestionRejected(t *testing.T) {
	loop := NewLoop(testAgentConfig(), 0.25, &fakeSearcher{}, passthroughExpander{}, &fakeChat{}, nil)

	_, err := loop.Answer(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedInput, types.GetErrorCode(err))
}

func TestCitationsDeduplicated(t *testing.T) {
	// 同文档同章节的两个块只产生一条引用。
	searcher := &fakeSearcher{hybrid: []types.FusedResult{
		fusedResult("terra", 0, 0.9),
		fusedResult("terra", 1, 0.8),
		fusedResult("macragge", 0, 0.7),
	}}
	chat := &fakeChat{content: "Terra and Macragge. [1][3]"}
	loop := NewLoop(testAgentConfig(), 0.25, searcher, passthroughExpander{}, chat, nil)

	answer, err := loop.Answer(context.Background(), "Compare Terra and Macragge")
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAnswered, answer.Outcome)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "terra", answer.Citations[0].DocumentID)
	assert.Equal(t, "macragge", answer.Citations[1].DocumentID)
}

func TestStateTransitionTable(t *testing.T) {
	assert.True(t, validTransition(StateStart, StateToolSelection))
	assert.True(t, validTransition(StateEvidenceCheck, StateRefusing))
	assert.True(t, validTransition(StateAnswering, StateDone))

	// 绕过证据检查直接作答是非法迁移。
	assert.False(t, validTransition(StateStart, StateAnswering))
	assert.False(t, validTransition(StateDone, StateToolSelection))
}
