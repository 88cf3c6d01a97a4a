package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Document 版本化的百科文档。
// 同一来源（URL/标题）的重复摄取在内容哈希变化时产生新版本，
// 旧版本被整体退役而非原地修改。
type Document struct {
	ID          string            `json:"id"`         // 稳定标识（来源 URL/标题派生的 slug）
	Title       string            `json:"title"`      // 页面标题
	SourceURL   string            `json:"source_url"` // 原始页面 URL
	RawMarkup   string            `json:"raw_markup"` // 原始 wiki 标记
	Categories  []string          `json:"categories"` // 归一化后的分类标签
	Metadata    map[string]string `json:"metadata"`   // 扁平化结构化元数据（infobox 等）
	Sections    []Section         `json:"sections"`   // 清洗后的有序章节
	Version     int64             `json:"version"`    // 逻辑版本号
	ContentHash string            `json:"content_hash"`
	IngestedAt  time.Time         `json:"ingested_at"`
}

// Section 文档的有序章节。
// 不变量：按 Position 顺序拼接所有 Section.Text 可还原文档的清洗正文。
type Section struct {
	HeadingPath []string `json:"heading_path"` // 标题路径，如 ["Overview","History"]
	Text        string   `json:"text"`         // 清洗后的正文
	Position    int      `json:"position"`     // 文档内位置序号
}

// Heading 返回标题路径的末级标题，无标题章节返回空串。
func (s Section) Heading() string {
	if len(s.HeadingPath) == 0 {
		return ""
	}
	return s.HeadingPath[len(s.HeadingPath)-1]
}

// Chunk 检索单元。恰好属于一个 Section、一个文档版本。
// ID 由 文档ID + 章节序号 + 块序号 构成，跨版本稳定。
type Chunk struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"document_id"`
	Version     int64    `json:"version"`
	SectionPath []string `json:"section_path"`
	SectionIdx  int      `json:"section_idx"`
	ChunkIdx    int      `json:"chunk_idx"`
	Text        string   `json:"text"`
	TokenCount  int      `json:"token_count"`
	Oversized   bool     `json:"oversized,omitempty"` // 单句超长块，显式标记而非截断
}

// ChunkID 构造稳定的 Chunk 标识。
func ChunkID(docID string, sectionIdx, chunkIdx int) string {
	return fmt.Sprintf("%s#s%d.c%d", docID, sectionIdx, chunkIdx)
}

// Embedding 单个 Chunk 的定长向量。
// 携带模型标识，不同嵌入模型产出的向量永不互相比较。
type Embedding struct {
	ChunkID string    `json:"chunk_id"`
	Model   string    `json:"model"`
	Vector  []float64 `json:"vector"`
}

// RetrievalSource 检索来源。
type RetrievalSource string

const (
	SourceLexical RetrievalSource = "lexical"
	SourceVector  RetrievalSource = "vector"
	SourceGraph   RetrievalSource = "graph"
)

// RetrievalResult 单条检索结果。Score 语义随来源不同，融合前必须归一化。
type RetrievalResult struct {
	Chunk  Chunk           `json:"chunk"`
	Score  float64         `json:"score"`
	Source RetrievalSource `json:"source"`
}

// FusedResult 融合后的排名结果，保留各来源的归一化分数。
type FusedResult struct {
	Chunk        Chunk                       `json:"chunk"`
	FusedScore   float64                     `json:"fused_score"`
	SourceScores map[RetrievalSource]float64 `json:"source_scores"`
	RerankScore  float64                     `json:"rerank_score,omitempty"`
	IngestedAt   time.Time                   `json:"ingested_at,omitempty"` // 文档时间，用于平分时的新近性裁决
}

// Citation 回答中的引用，指向一个已检索 Chunk 的来源位置。
type Citation struct {
	DocumentID  string   `json:"document_id"`
	SectionPath []string `json:"section_path"`
}

// Outcome 用户可见的回答结局。内部异常永不直接抵达调用方。
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeRefused   Outcome = "refused"
	OutcomeCancelled Outcome = "cancelled"
)

// Answer 回答链路的最终输出。
type Answer struct {
	Text      string     `json:"answer_text"`
	Citations []Citation `json:"citations"`
	Outcome   Outcome    `json:"outcome"`
}

// IngestStatus 摄取结局。
type IngestStatus string

const (
	IngestOK      IngestStatus = "ok"
	IngestSkipped IngestStatus = "skipped"
	IngestError   IngestStatus = "error"
)

// IngestAck 摄取接口的应答。
type IngestAck struct {
	Status     IngestStatus `json:"status"`
	DocumentID string       `json:"document_id"`
	Version    int64        `json:"version"`
}

// ContentHash 计算清洗正文的 sha256，作为幂等重摄取的判据。
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 从标题派生稳定的文档 ID。
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 96 {
		s = strings.Trim(s[:96], "-")
	}
	if s == "" {
		return "page"
	}
	return s
}

// NormalizeCategories 归一化分类标签：trim、小写、去重、保序。
func NormalizeCategories(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
