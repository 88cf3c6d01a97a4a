package ingest

import (
	"strings"
	"testing"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
	"pgregory.net/rapid"
)

// 词表生成可读的伪句子，避免 rapid 生成的任意字节干扰句界判定。
var propWords = []string{
	"emperor", "legion", "primarch", "terra", "macragge", "astartes",
	"heresy", "crusade", "warmaster", "chapter", "fleet", "sector",
}

func genSectionText(t *rapid.T) string {
	nSentences := rapid.IntRange(1, 40).Draw(t, "sentences")
	var b strings.Builder
	for i := 0; i < nSentences; i++ {
		nWords := rapid.IntRange(1, 12).Draw(t, "words")
		for j := 0; j < nWords; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(propWords[rapid.IntRange(0, len(propWords)-1).Draw(t, "word")])
		}
		b.WriteString(". ")
	}
	return strings.TrimSuffix(b.String(), " ")
}

// 零重叠下，块文本顺序拼接必须精确还原章节正文。
func TestChunkerRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genSectionText(t)
		maxSize := rapid.IntRange(5, 100).Draw(t, "max_size")

		c := NewChunker(config.ChunkingConfig{MaxChunkSize: maxSize, Overlap: 0}, EstimatorTokenizer{}, nil)
		chunks := c.ChunkDocument(&types.Document{
			ID:       "prop-doc",
			Sections: []types.Section{{Text: text}},
		})

		var b strings.Builder
		for _, ch := range chunks {
			b.WriteString(ch.Text)
		}
		if b.String() != text {
			t.Fatalf("round trip failed for max_size=%d\nwant %q\ngot  %q", maxSize, text, b.String())
		}
	})
}

// 任意块大小下，非超长块 token 数永不超过预算；超长块必须被显式标记。
func TestChunkerBudgetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genSectionText(t)
		maxSize := rapid.IntRange(3, 60).Draw(t, "max_size")
		overlap := rapid.IntRange(0, maxSize-1).Draw(t, "overlap")

		c := NewChunker(config.ChunkingConfig{MaxChunkSize: maxSize, Overlap: overlap}, EstimatorTokenizer{}, nil)
		chunks := c.ChunkDocument(&types.Document{
			ID:       "prop-doc",
			Sections: []types.Section{{Text: text}},
		})

		for _, ch := range chunks {
			if ch.TokenCount > maxSize && !ch.Oversized {
				t.Fatalf("unflagged over-budget chunk: %d tokens > %d", ch.TokenCount, maxSize)
			}
			if ch.Oversized && strings.Count(strings.TrimSpace(ch.Text), ". ") > 0 {
				// 超长块只允许由单句构成
				t.Fatalf("oversized chunk spans multiple sentences: %q", ch.Text)
			}
		}
	})
}
