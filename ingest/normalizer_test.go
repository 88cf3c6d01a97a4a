package ingest

import (
	"strings"
	"testing"

	"github.com/AndreF343/Warhammer40K-The-Librarian/types"
	"go.uber.org/zap"
)

const primarchMarkup = `{{Infobox Primarch
|homeworld = [[Terra]]
|legion = '''XIII''' Legion
|notable_battles = * [[Battle of Calth]]
* Siege of Terra
|stats = {{Primarch stats
|points = 100
|loyalty = Loyalist
}}
}}
The [[Primarch|Primarchs]] were the twenty gene-sons of the Emperor.<ref>Horus Heresy, Book One</ref> They led the Legiones Astartes.

== Overview ==
Each Primarch commanded a Space Marine Legion. Their gene-seed shaped their sons.

== History ==
The Primarchs were scattered across the galaxy.[1] Many were later recovered.

[[Category:Primarchs]]
[[Category:Space Marines]]
`

func TestNormalizePrimarchPage(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	doc, err := n.Normalize(RawPage{
		Title:  "Primarch",
		Markup: primarchMarkup,
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if doc.ID != "primarch" {
		t.Errorf("expected id primarch, got %s", doc.ID)
	}

	// 前导段 + Overview + History
	if len(doc.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d: %+v", len(doc.Sections), doc.Sections)
	}
	if doc.Sections[1].Heading() != "Overview" {
		t.Errorf("expected Overview heading, got %q", doc.Sections[1].Heading())
	}
	if got := doc.Sections[2].HeadingPath; len(got) != 1 || got[0] != "History" {
		t.Errorf("unexpected heading path: %v", got)
	}

	// infobox 顶层字段为裸键
	if doc.Metadata["homeworld"] != "Terra" {
		t.Errorf("expected homeworld Terra, got %q", doc.Metadata["homeworld"])
	}
	if doc.Metadata["legion"] != "XIII Legion" {
		t.Errorf("expected legion cleaned of markup, got %q", doc.Metadata["legion"])
	}
	// 列表值按确定性分隔符连接
	if doc.Metadata["notable_battles"] != "Battle of Calth; Siege of Terra" {
		t.Errorf("unexpected list value: %q", doc.Metadata["notable_battles"])
	}
	// 嵌套模板展开为点号键
	if doc.Metadata["infobox.stats.points"] != "100" {
		t.Errorf("expected nested dotted key, got %q", doc.Metadata["infobox.stats.points"])
	}

	// 分类归一化：trim + 小写 + 去重
	if len(doc.Categories) != 2 || doc.Categories[0] != "primarchs" {
		t.Errorf("unexpected categories: %v", doc.Categories)
	}

	// 标记与引用痕迹必须被剥除
	body := joinSections(doc.Sections)
	for _, needle := range []string{"[[", "]]", "<ref", "'''", "{{", "[1]"} {
		if strings.Contains(body, needle) {
			t.Errorf("cleaned body still contains %q", needle)
		}
	}
	if !strings.Contains(body, "Primarchs were the twenty gene-sons") {
		t.Error("link labels must survive stripping")
	}

	if doc.ContentHash == "" {
		t.Error("expected content hash")
	}
}

func TestNormalizeLinkLabels(t *testing.T) {
	n := NewNormalizer(nil)
	doc, err := n.Normalize(RawPage{
		Title:  "Calth",
		Markup: "The [[Battle of Calth|battle]] raged. See [https://example.com the archives] for more.",
	})
	if err != nil {
		t.Fatal(err)
	}
	text := doc.Sections[0].Text
	if !strings.Contains(text, "battle raged") {
		t.Errorf("piped link label lost: %q", text)
	}
	if !strings.Contains(text, "the archives") {
		t.Errorf("external link label lost: %q", text)
	}
	if strings.Contains(text, "https://") {
		t.Errorf("raw URL must be stripped: %q", text)
	}
}

func TestNormalizeMalformedInput(t *testing.T) {
	n := NewNormalizer(nil)

	_, err := n.Normalize(RawPage{Title: "Empty", Markup: "{{Infobox X|a=b}}\n\n"})
	if err == nil {
		t.Fatal("expected error for page with no sections")
	}
	if !types.IsCode(err, types.ErrMalformedInput) {
		t.Errorf("expected MALFORMED_INPUT, got %v", err)
	}
}

func TestNormalizeRoundTripHash(t *testing.T) {
	n := NewNormalizer(nil)
	page := RawPage{Title: "Macragge", Markup: "Macragge is a world. == Geography == Cold and mountainous."}

	a, err := n.Normalize(page)
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Normalize(page)
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentHash != b.ContentHash {
		t.Error("identical input must yield identical content hash")
	}
}
