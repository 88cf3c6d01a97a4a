package ingest

import (
	"strings"
	"testing"

	"github.com/AndreF343/Warhammer40K-The-Librarian/config"
	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
	"go.uber.org/zap"
)

func testChunker(maxSize, overlap int) *Chunker {
	return NewChunker(config.ChunkingConfig{
		MaxChunkSize: maxSize,
		Overlap:      overlap,
	}, EstimatorTokenizer{}, zap.NewNop())
}

func sectionDoc(texts ...string) *types.Document {
	doc := &types.Document{ID: "test-doc"}
	for i, t := range texts {
		doc.Sections = append(doc.Sections, types.Section{
			HeadingPath: []string{"Section"},
			Text:        t,
			Position:    i,
		})
	}
	return doc
}

func TestChunkerBudgetRespected(t *testing.T) {
	c := testChunker(20, 0)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("The Emperor protects his loyal servants always. ")
	}
	chunks := c.ChunkDocument(sectionDoc(b.String()))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if !ch.Oversized && ch.TokenCount > 20 {
			t.Errorf("chunk %s exceeds budget: %d tokens", ch.ID, ch.TokenCount)
		}
	}
}

func TestChunkerStableIDs(t *testing.T) {
	c := testChunker(20, 0)
	chunks := c.ChunkDocument(sectionDoc(
		"First section sentence one. First section sentence two. First section sentence three.",
		"Second section sentence one. Second section sentence two.",
	))

	seen := make(map[string]bool)
	for _, ch := range chunks {
		if seen[ch.ID] {
			t.Errorf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
		want := types.ChunkID("test-doc", ch.SectionIdx, ch.ChunkIdx)
		if ch.ID != want {
			t.Errorf("id %s does not match derivation %s", ch.ID, want)
		}
	}
}

func TestChunkerOversizedSentence(t *testing.T) {
	c := testChunker(10, 0)
	long := "This single sentence is deliberately far longer than the configured maximum chunk size and must never be split in the middle of itself."
	chunks := c.ChunkDocument(sectionDoc(long))

	if len(chunks) != 1 {
		t.Fatalf("expected one oversized chunk, got %d", len(chunks))
	}
	if !chunks[0].Oversized {
		t.Error("oversized chunk must be flagged")
	}
	if chunks[0].Text != long {
		t.Error("oversized sentence must be emitted intact")
	}
}

func TestChunkerOverlapBounded(t *testing.T) {
	c := testChunker(20, 8)
	text := "Alpha sentence here one. Bravo sentence here two. Charlie sentence here three. " +
		"Delta sentence here four. Echo sentence here five. Foxtrot sentence here six."
	chunks := c.ChunkDocument(sectionDoc(text))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Text == chunks[i-1].Text {
			t.Errorf("chunk %d is a full duplicate of its predecessor", i)
		}
		// 重叠体现为后块前缀与前块后缀相同
		if overlapLen(chunks[i-1].Text, chunks[i].Text) == 0 {
			t.Errorf("chunk %d shares no boundary text with predecessor", i)
		}
	}
}

func TestChunkerRoundTrip(t *testing.T) {
	c := testChunker(25, 0)
	text := "Sentence one is here. Sentence two follows it. Sentence three continues on. " +
		"Sentence four keeps going always. Sentence five ends the section."
	chunks := c.ChunkDocument(sectionDoc(text))

	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Text)
	}
	if b.String() != text {
		t.Errorf("zero-overlap chunks must reconstruct the section\nwant: %q\ngot:  %q", text, b.String())
	}
}

func TestChunkerScenarioCounts(t *testing.T) {
	// 每章节块数 = ceil(章节 token 数 / max_chunk_size) 量级的基本核验
	c := testChunker(15, 0)
	chunks := c.ChunkDocument(sectionDoc(
		"Overview text sentence number one. Overview text sentence number two.",
		"History text sentence number one. History text sentence number two.",
	))

	perSection := map[int]int{}
	for _, ch := range chunks {
		perSection[ch.SectionIdx]++
	}
	if len(perSection) != 2 {
		t.Fatalf("expected chunks across 2 sections, got %v", perSection)
	}
}

// overlapLen 返回 prev 后缀与 next 前缀的最长公共长度。
func overlapLen(prev, next string) int {
	max := len(prev)
	if len(next) < max {
		max = len(next)
	}
	for l := max; l > 0; l-- {
		if prev[len(prev)-l:] == next[:l] {
			return l
		}
	}
	return 0
}
