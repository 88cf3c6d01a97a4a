package agent

import "github.com/AndreF343/Warhammer40K-The-Librarian/types"

// State 回答循环的状态。
type State string

const (
	StateStart         State = "start"
	StateToolSelection State = "tool_selection"
	StateToolExecution State = "tool_execution"
	StateEvidenceCheck State = "evidence_check"
	StateAnswering     State = "answering"
	StateRefusing      State = "refusing"
	StateDone          State = "done"
)

// Tool 代理可用的工具。
type Tool string

const (
	ToolHybridSearch Tool = "hybrid_search" // 词法 + 向量混合检索
	ToolGraphLookup  Tool = "graph_lookup"  // 分类 / infobox 结构化查询
)

// allowedTransitions 合法的状态迁移。任何越界迁移都是编程错误。
var allowedTransitions = map[State][]State{
	StateStart:         {StateToolSelection},
	StateToolSelection: {StateToolExecution, StateEvidenceCheck, StateRefusing},
	StateToolExecution: {StateToolSelection, StateRefusing},
	StateEvidenceCheck: {StateAnswering, StateRefusing},
	StateAnswering:     {StateDone, StateRefusing},
	StateRefusing:      {StateDone},
}

func validTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionError 越界迁移的结构化错误。
func transitionError(from, to State) *types.Error {
	return types.NewError(types.ErrInvalidTransition,
		"illegal state transition: "+string(from)+" -> "+string(to))
}
