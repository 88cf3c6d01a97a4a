package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AndreF343/Warhammer40K-The-Librarian/llm"
	"github.com/AndreF343/Warhammer40K-The-Librarian/retrieval"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
)

const systemPrompt = `You are the Librarian, keeper of an archive of encyclopedic records.
Answer the question using ONLY the numbered evidence passages provided.
Cite the passage number for every claim, like [1] or [2][3].
Do not use any knowledge that is not present in the evidence.
If the evidence does not answer the question, reply exactly:
` + RefusalText

// maxEvidencePassages 提示词里最多呈现的证据段数。
const maxEvidencePassages = 8

// compose 扩展上下文、构造提示词并合成答案。
// 引用只来自本轮循环累积的证据集。
func (l *Loop) compose(ctx context.Context, r *run) error {
	relevant := l.relevantEvidence(r)
	if len(relevant) == 0 {
		// EvidenceCheck 之后不可能为空，除非调用序被破坏。
		return transitionError(StateAnswering, StateAnswering)
	}
	if len(relevant) > maxEvidencePassages {
		relevant = relevant[:maxEvidencePassages]
	}

	evidence, err := l.expander.Expand(ctx, relevant)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("Evidence:\n")
	for i, ev := range evidence {
		section := strings.Join(ev.Chunk.SectionPath, " > ")
		if section == "" {
			section = "(preamble)"
		}
		fmt.Fprintf(&sb, "[%d] document %q, section %q:\n%s\n",
			i+1, ev.Chunk.DocumentID, section, ev.Chunk.Text)
		for _, n := range ev.Context {
			fmt.Fprintf(&sb, "    (context) %s\n", n.Text)
		}
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n", r.question)

	messages := make([]llm.Message, 0, len(r.conversation)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, r.conversation...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: sb.String()})

	resp, err := l.chat.Chat(ctx, &llm.ChatRequest{Messages: messages})
	if err != nil {
		return err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" || strings.Contains(text, RefusalText) {
		// 模型自行判定证据不足，按拒答处理。
		r.answer = &types.Answer{Text: RefusalText, Outcome: types.OutcomeRefused}
		l.logger.Info("model declined to answer from evidence")
		return nil
	}

	r.answer = &types.Answer{
		Text:      text,
		Citations: citationsFrom(evidence),
		Outcome:   types.OutcomeAnswered,
	}
	l.logger.Info("question answered",
		zap.Int("evidence", len(evidence)),
		zap.Int("citations", len(r.answer.Citations)))
	return nil
}

// citationsFrom 从证据集提取去重后的引用，保持证据排序。
func citationsFrom(evidence []retrieval.Evidence) []types.Citation {
	citations := make([]types.Citation, 0, len(evidence))
	seen := make(map[string]struct{}, len(evidence))
	for _, ev := range evidence {
		key := ev.Chunk.DocumentID + "\x00" + strings.Join(ev.Chunk.SectionPath, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, types.Citation{
			DocumentID:  ev.Chunk.DocumentID,
			SectionPath: ev.Chunk.SectionPath,
		})
	}
	return citations
}

// sortEvidence 按相关性降序，平分按文档新近性再按块位置。
func sortEvidence(out []types.FusedResult) {
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := evidenceRelevance(out[i]), evidenceRelevance(out[j])
		if ri != rj {
			return ri > rj
		}
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		if out[i].Chunk.SectionIdx != out[j].Chunk.SectionIdx {
			return out[i].Chunk.SectionIdx < out[j].Chunk.SectionIdx
		}
		return out[i].Chunk.ChunkIdx < out[j].Chunk.ChunkIdx
	})
}
