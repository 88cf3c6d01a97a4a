package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
	"go.uber.org/zap"
)

// RawPage 摄取入口的原始页面：标题、正文标记与可选的显式分类列表。
type RawPage struct {
	Title      string   `json:"title"`
	SourceURL  string   `json:"source_url,omitempty"`
	Markup     string   `json:"markup"`
	Categories []string `json:"categories,omitempty"`
}

// Normalizer 把原始 wiki 标记页面转换为带清洗章节和扁平元数据的 Document。
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer 创建归一化器。
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger.With(zap.String("component", "normalizer"))}
}

var (
	headingRe     = regexp.MustCompile(`^(={2,6})\s*(.*?)\s*={2,6}\s*$`)
	categoryRe    = regexp.MustCompile(`\[\[[Cc]ategory:([^\]|]+)(?:\|[^\]]*)?\]\]`)
	fileRe        = regexp.MustCompile(`\[\[(?:File|Image):[^\]]*\]\]`)
	wikiLinkRe    = regexp.MustCompile(`\[\[([^\]|]*)(?:\|([^\]]*))?\]\]`)
	externalRe    = regexp.MustCompile(`\[https?://\S+(?:\s+([^\]]+))?\]`)
	refPairRe     = regexp.MustCompile(`(?s)<ref[^>/]*>.*?</ref>`)
	refSelfRe     = regexp.MustCompile(`<ref[^>]*/>`)
	citeMarkerRe  = regexp.MustCompile(`\[\d+[a-z]?\]`)
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTagRe     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	boldItalicRe  = regexp.MustCompile(`'{2,5}`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// Normalize 解析一张页面。正文解析不出至少一个非空章节时返回
// MALFORMED_INPUT，调用方应跳过该文档并继续批次。
func (n *Normalizer) Normalize(page RawPage) (*types.Document, error) {
	title := strings.TrimSpace(page.Title)
	markup := page.Markup

	// 1. 抽取并移除 infobox 块（必须在通用模板剥除之前）
	metadata, markup := extractInfobox(markup)

	// 2. 收集分类标签：显式列表 + 正文 [[Category:...]] 标记
	cats := append([]string{}, page.Categories...)
	for _, m := range categoryRe.FindAllStringSubmatch(markup, -1) {
		cats = append(cats, m[1])
	}
	markup = categoryRe.ReplaceAllString(markup, "")

	// 3. 剥除非内容样板
	markup = stripMarkup(markup)

	// 4. 按标题层级切章节
	sections := splitSections(markup)
	if len(sections) == 0 {
		return nil, types.NewError(types.ErrMalformedInput, "markup yields no parseable sections").
			WithDocumentID(types.Slugify(title))
	}

	body := joinSections(sections)
	doc := &types.Document{
		ID:          types.Slugify(firstNonEmpty(title, page.SourceURL)),
		Title:       title,
		SourceURL:   page.SourceURL,
		RawMarkup:   page.Markup,
		Categories:  types.NormalizeCategories(cats),
		Metadata:    metadata,
		Sections:    sections,
		ContentHash: types.ContentHash(body),
		IngestedAt:  time.Now().UTC(),
	}

	n.logger.Debug("page normalized",
		zap.String("doc_id", doc.ID),
		zap.Int("sections", len(sections)),
		zap.Int("metadata_keys", len(metadata)),
		zap.Int("categories", len(doc.Categories)))

	return doc, nil
}

// stripMarkup 移除标记语法和非内容样板，保留标题结构。
func stripMarkup(s string) string {
	s = htmlCommentRe.ReplaceAllString(s, "")
	s = refPairRe.ReplaceAllString(s, "")
	s = refSelfRe.ReplaceAllString(s, "")
	s = fileRe.ReplaceAllString(s, "")
	s = stripTemplates(s)
	s = wikiLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := wikiLinkRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return sub[2]
		}
		return sub[1]
	})
	s = externalRe.ReplaceAllString(s, "$1")
	s = citeMarkerRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = boldItalicRe.ReplaceAllString(s, "")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return s
}

// stripTemplates 移除剩余的 {{...}} 模板（支持嵌套括号配对）。
func stripTemplates(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			depth++
			i++
			continue
		}
		if i+1 < len(s) && s[i] == '}' && s[i+1] == '}' && depth > 0 {
			depth--
			i++
			continue
		}
		if depth == 0 {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// splitSections 按 == 标题 == 层级切分正文，维护标题路径栈。
// 首个标题之前的内容进入一个无标题的前导章节。
func splitSections(markup string) []types.Section {
	var sections []types.Section
	var path []string // 当前标题路径，index = level-2
	var buf []string
	var bufPath []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		sections = append(sections, types.Section{
			HeadingPath: append([]string{}, bufPath...),
			Text:        text,
			Position:    len(sections),
		})
	}

	for _, line := range strings.Split(markup, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1]) - 2 // == → 0, === → 1, ...
			heading := strings.TrimSpace(m[2])
			if level < len(path) {
				path = path[:level]
			}
			for len(path) < level {
				path = append(path, "") // 跳级标题：补空占位
			}
			path = append(path, heading)
			bufPath = append([]string{}, path...)
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

// joinSections 按位置顺序拼接章节正文，还原清洗后的文档全文。
func joinSections(sections []types.Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\n")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
