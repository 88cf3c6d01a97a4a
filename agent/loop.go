package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/retrieval"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

// RefusalText 证据不足时的固定拒答文案。
const RefusalText = "I do not hold sufficient grounded evidence in the archives to answer that."

// Searcher 检索能力，由 retrieval.Retriever 实现。
type Searcher interface {
	Retrieve(ctx context.Context, query string, sources ...types.RetrievalSource) ([]types.FusedResult, error)
}

// ContextExpander 上下文扩展能力，由 retrieval.Expander 实现。
type ContextExpander interface {
	Expand(ctx context.Context, results []types.FusedResult) ([]retrieval.Evidence, error)
}

// Loop 有据回答代理。每个问题独立运行一轮状态机，无共享可变状态。
type Loop struct {
	cfg      config.AgentConfig
	minScore float64
	searcher Searcher
	expander ContextExpander
	chat     llm.Provider
	metrics  ToolMetrics // 可为 nil
	logger   *zap.Logger
}

// NewLoop 创建回答代理。minScore 是证据相关性阈值。
func NewLoop(
	cfg config.AgentConfig,
	minScore float64,
	searcher Searcher,
	expander ContextExpander,
	chat llm.Provider,
	logger *zap.Logger,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:      cfg,
		minScore: minScore,
		searcher: searcher,
		expander: expander,
		chat:     chat,
		logger:   logger.With(zap.String("component", "agent_loop")),
	}
}

// run 单个问题的循环状态。
type run struct {
	question     string
	conversation []llm.Message

	state        State
	toolCalls    int
	hybridCalled bool
	graphCalled  bool
	hasResults   bool
	pending      Tool

	evidence map[string]types.FusedResult // chunk id → 最高分命中
	answer   *types.Answer
}

func (r *run) step(to State) error {
	if !validTransition(r.state, to) {
		return transitionError(r.state, to)
	}
	r.state = to
	return nil
}

// Answer 回答一个问题。结局恒为 answered / refused / cancelled 之一；
// 返回 error 表示内部故障，调用方不得将其透传给用户。
func (l *Loop) Answer(ctx context.Context, question string, conversation ...llm.Message) (*types.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, types.NewError(types.ErrMalformedInput, "answer: empty question")
	}

	if l.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.QueryTimeout)
		defer cancel()
	}

	r := &run{
		question:     question,
		conversation: conversation,
		state:        StateStart,
		evidence:     make(map[string]types.FusedResult),
	}

	for {
		// 状态之间随时可中断：中断即 cancelled，绝无部分答案。
		if ctx.Err() != nil {
			l.logger.Info("query cancelled",
				zap.String("state", string(r.state)))
			return &types.Answer{Outcome: types.OutcomeCancelled}, nil
		}

		var err error
		switch r.state {
		case StateStart:
			err = r.step(StateToolSelection)

		case StateToolSelection:
			err = l.selectTool(r)

		case StateToolExecution:
			err = l.executeTool(ctx, r)

		case StateEvidenceCheck:
			if len(l.relevantEvidence(r)) == 0 {
				l.logger.Info("no evidence above threshold, refusing",
					zap.Int("candidates", len(r.evidence)))
				err = r.step(StateRefusing)
			} else {
				err = r.step(StateAnswering)
			}

		case StateAnswering:
			answerErr := l.compose(ctx, r)
			if answerErr != nil {
				if ctx.Err() != nil {
					return &types.Answer{Outcome: types.OutcomeCancelled}, nil
				}
				// 合成失败降级为拒答，内部异常不外泄。
				l.logger.Warn("answer synthesis failed, refusing", zap.Error(answerErr))
				err = r.step(StateRefusing)
			} else {
				err = r.step(StateDone)
			}

		case StateRefusing:
			r.answer = &types.Answer{Text: RefusalText, Outcome: types.OutcomeRefused}
			err = r.step(StateDone)

		case StateDone:
			return r.answer, nil

		default:
			return nil, transitionError(r.state, r.state)
		}

		if err != nil {
			// 工具执行中途超时/取消同样是 cancelled，不是错误也不是拒答。
			if ctx.Err() != nil || types.IsCode(err, types.ErrCancelled) {
				l.logger.Info("query cancelled",
					zap.String("state", string(r.state)))
				return &types.Answer{Outcome: types.OutcomeCancelled}, nil
			}
			return nil, err
		}
	}
}

// selectTool 选择下一个工具。次序固定：混合检索必须先行，
// graph 只在至少一次检索返回结果后允许，且不超出预算。
func (l *Loop) selectTool(r *run) error {
	if !r.hybridCalled {
		if r.toolCalls >= l.cfg.ToolBudget {
			// 必需的首次检索都无法执行，只能拒答。
			return r.step(StateRefusing)
		}
		r.pending = ToolHybridSearch
		return r.step(StateToolExecution)
	}

	if r.hasResults && !r.graphCalled && r.toolCalls < l.cfg.ToolBudget {
		r.pending = ToolGraphLookup
		return r.step(StateToolExecution)
	}

	return r.step(StateEvidenceCheck)
}

// ToolMetrics 工具调用计数回调，由 metrics 收集器实现。
type ToolMetrics interface {
	ToolCall(tool string)
}

// SetMetrics 安装工具调用观测。传 nil 关闭观测。
func (l *Loop) SetMetrics(m ToolMetrics) {
	l.metrics = m
}

// executeTool 执行选定的工具并把结果并入证据集。
func (l *Loop) executeTool(ctx context.Context, r *run) error {
	if r.toolCalls >= l.cfg.ToolBudget {
		l.logger.Warn("tool budget exceeded, refusing",
			zap.Int("budget", l.cfg.ToolBudget))
		return r.step(StateRefusing)
	}
	r.toolCalls++
	if l.metrics != nil {
		l.metrics.ToolCall(string(r.pending))
	}

	var results []types.FusedResult
	var err error
	switch r.pending {
	case ToolHybridSearch:
		r.hybridCalled = true
		results, err = l.searcher.Retrieve(ctx, r.question, types.SourceLexical, types.SourceVector)
	case ToolGraphLookup:
		r.graphCalled = true
		results, err = l.searcher.Retrieve(ctx, r.question, types.SourceGraph)
	default:
		return fmt.Errorf("unknown tool: %s", r.pending)
	}
	if err != nil {
		return err
	}

	if len(results) > 0 {
		r.hasResults = true
	}
	for _, res := range results {
		prev, ok := r.evidence[res.Chunk.ID]
		if !ok || res.FusedScore > prev.FusedScore {
			r.evidence[res.Chunk.ID] = res
		}
	}

	l.logger.Debug("tool executed",
		zap.String("tool", string(r.pending)),
		zap.Int("results", len(results)),
		zap.Int("evidence", len(r.evidence)))

	return r.step(StateToolSelection)
}

// relevantEvidence 返回超过相关性阈值的证据，按分数降序。
// 重排分存在时以重排分为准，否则用融合分。
func (l *Loop) relevantEvidence(r *run) []types.FusedResult {
	out := make([]types.FusedResult, 0, len(r.evidence))
	for _, res := range r.evidence {
		if evidenceRelevance(res) >= l.minScore {
			out = append(out, res)
		}
	}
	sortEvidence(out)
	return out
}

func evidenceRelevance(res types.FusedResult) float64 {
	if res.RerankScore > 0 {
		return res.RerankScore
	}
	return res.FusedScore
}
