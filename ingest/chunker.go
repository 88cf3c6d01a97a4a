package ingest

import (
	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
	"go.uber.org/zap"
)

// Chunker 把文档章节切分为带稳定标识的检索单元。
// 句子级贪心累积：加入下一句会超出 max_chunk_size 时收束当前块，
// 新块重复上一块尾部至多 overlap 预算的句子（有界重叠，绝不整块重复）。
type Chunker struct {
	cfg       config.ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器。
func NewChunker(cfg config.ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		cfg:       cfg,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "chunker")),
	}
}

// ChunkDocument 切分整个文档，按章节顺序返回全部块。
func (c *Chunker) ChunkDocument(doc *types.Document) []types.Chunk {
	var chunks []types.Chunk
	oversized := 0

	for si, sec := range doc.Sections {
		for _, ch := range c.chunkSection(doc.ID, si, sec) {
			if ch.Oversized {
				oversized++
			}
			chunks = append(chunks, ch)
		}
	}

	if oversized > 0 {
		// 超长单句块：报告，不致命
		c.logger.Warn("oversized single-sentence chunks emitted",
			zap.String("doc_id", doc.ID),
			zap.Int("count", oversized))
	}
	c.logger.Debug("document chunked",
		zap.String("doc_id", doc.ID),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// chunkSection 切分单个章节。
func (c *Chunker) chunkSection(docID string, sectionIdx int, sec types.Section) []types.Chunk {
	units := c.toUnits(splitSentences(sec.Text))
	if len(units) == 0 {
		return nil
	}

	var chunks []types.Chunk
	var cur []sentenceUnit
	curTokens := 0

	emit := func() {
		if len(cur) == 0 {
			return
		}
		text := joinUnits(cur)
		chunks = append(chunks, types.Chunk{
			ID:          types.ChunkID(docID, sectionIdx, len(chunks)),
			DocumentID:  docID,
			SectionPath: sec.HeadingPath,
			SectionIdx:  sectionIdx,
			ChunkIdx:    len(chunks),
			Text:        text,
			TokenCount:  curTokens,
			Oversized:   len(cur) == 1 && curTokens > c.cfg.MaxChunkSize,
		})
	}

	for _, u := range units {
		if curTokens+u.tokens > c.cfg.MaxChunkSize && len(cur) > 0 {
			emit()
			// 重叠尾部同时受 overlap 预算和剩余块预算约束，
			// 保证重叠永不把新块顶出 max_chunk_size
			cur, curTokens = c.overlapTail(cur, c.cfg.MaxChunkSize-u.tokens)
		}
		cur = append(cur, u)
		curTokens += u.tokens

		// 单句独自超出预算：作为超长块立即收束，不在句中切断
		if len(cur) == 1 && curTokens > c.cfg.MaxChunkSize {
			emit()
			cur, curTokens = nil, 0
		}
	}
	emit()

	return chunks
}

// overlapTail 取上一块尾部不超过 overlap 预算（且不超过剩余块预算）的
// 句子作为新块开头。首句永不进入重叠，保证新块绝不是上一块的全量重复。
func (c *Chunker) overlapTail(prev []sentenceUnit, budget int) ([]sentenceUnit, int) {
	limit := c.cfg.Overlap
	if budget < limit {
		limit = budget
	}
	if limit <= 0 {
		return nil, 0
	}

	var tail []sentenceUnit
	tokens := 0
	for i := len(prev) - 1; i > 0; i-- {
		u := prev[i]
		if tokens+u.tokens > limit {
			break
		}
		tail = append([]sentenceUnit{u}, tail...)
		tokens += u.tokens
	}
	return tail, tokens
}

// sentenceUnit 一个句子单元及其 token 计数。文本保留原始空白，
// 使单元拼接可精确还原章节正文。
type sentenceUnit struct {
	text   string
	tokens int
}

// toUnits 用注入的分词器为每个句子计数。
func (c *Chunker) toUnits(raw []string) []sentenceUnit {
	units := make([]sentenceUnit, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		units = append(units, sentenceUnit{text: s, tokens: c.tokenizer.CountTokens(s)})
	}
	return units
}

// splitSentences 把章节正文切为句子单元。句末标点（. ! ?）后跟空白
// 或换行视为句界；结尾空白归属前一单元。
func splitSentences(text string) []string {
	var units []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// 吞掉随后的空白，保持拼接无损
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
				j++
			}
			if r == '\n' || j > i+1 || j == len(runes) {
				units = append(units, string(runes[start:j]))
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		units = append(units, string(runes[start:]))
	}

	return units
}

func joinUnits(units []sentenceUnit) string {
	var b []byte
	for _, u := range units {
		b = append(b, u.text...)
	}
	return string(b)
}
