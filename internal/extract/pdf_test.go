package extract

import (
	"strings"
	"testing"
)

func block(text string, x0, y0 float64, page int, fontSize float64) TextBlock {
	return TextBlock{
		Text: text, X0: x0, Y0: y0, X1: x0 + 150, Y1: y0 + fontSize,
		Page: page, FontSize: fontSize,
	}
}

func TestSegmentColumnsTwoColumnsWithBoundaryBlock(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())

	// Two columns at x0=72 and x0=320 with a boundary block at x0=119:
	// the boundary block is within threshold (50) of the left column and
	// must join it.
	blocks := []TextBlock{
		block("left top", 72, 700, 1, 10),
		block("left middle", 72, 650, 1, 10),
		block("boundary", 119, 600, 1, 10),
		block("right top", 320, 700, 1, 10),
		block("right bottom", 320, 650, 1, 10),
	}

	columns := e.segmentColumns(blocks)

	if len(columns) != 2 {
		t.Fatalf("expected exactly 2 columns, got %d", len(columns))
	}
	if len(columns[0]) != 3 {
		t.Errorf("boundary block should join the left column, left has %d blocks", len(columns[0]))
	}
	if len(columns[1]) != 2 {
		t.Errorf("right column should have 2 blocks, got %d", len(columns[1]))
	}

	// Columns read top-to-bottom: descending y0.
	if columns[0][0].Y0 < columns[0][1].Y0 {
		t.Error("column blocks should be sorted top to bottom")
	}
}

func TestSegmentColumnsSeparatesPages(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())
	blocks := []TextBlock{
		block("page one", 72, 700, 1, 10),
		block("page two", 72, 700, 2, 10),
	}
	columns := e.segmentColumns(blocks)
	if len(columns) != 2 {
		t.Fatalf("blocks on different pages must not share a column, got %d columns", len(columns))
	}
}

func TestIsLikelyTitle(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())

	cases := []struct {
		name  string
		block TextBlock
		avg   float64
		want  bool
	}{
		{"oversized font", block("Anything at all goes here when the font is big enough ok", 72, 700, 1, 18), 12, true},
		{"all caps short", block("COUNCIL APPROVES BUDGET", 72, 700, 1, 10), 12, true},
		{"title case no punctuation", block("Council Approves New Budget", 72, 700, 1, 10), 12, true},
		{"sentence with period", block("the council met on tuesday and approved the budget.", 72, 700, 1, 10), 12, false},
		{"dateline", block("MARION: officials said", 72, 700, 1, 10), 12, true},
	}

	for _, tc := range cases {
		if got := e.isLikelyTitle(tc.block, tc.avg); got != tc.want {
			t.Errorf("%s: isLikelyTitle = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractArticlesFromColumn(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())

	body1 := "the council voted unanimously to approve the new school budget during a lengthy session on tuesday evening"
	body2 := "the varsity team defeated its longtime rival in overtime behind a strong defensive second half effort"

	column := []TextBlock{
		block("COUNCIL APPROVES BUDGET", 72, 700, 1, 10),
		block(body1, 72, 650, 1, 10),
		block("TIGERS WIN RIVALRY GAME", 72, 600, 1, 10),
		block(body2, 72, 550, 1, 10),
	}

	articles := e.extractArticlesFromColumn(column)

	if len(articles) != 2 {
		t.Fatalf("expected 2 articles split at titles, got %d", len(articles))
	}
	if articles[0].Title != "COUNCIL APPROVES BUDGET" {
		t.Errorf("first title wrong: %q", articles[0].Title)
	}
	if articles[1].Title != "TIGERS WIN RIVALRY GAME" {
		t.Errorf("second title wrong: %q", articles[1].Title)
	}
	if articles[0].WordCount != len(strings.Fields(body1)) {
		t.Errorf("word count should match content, got %d", articles[0].WordCount)
	}
}

func TestBuildArticleDropsShortFragments(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())
	_, ok := e.buildArticle([]TextBlock{block("too short", 72, 700, 1, 10)}, "Title")
	if ok {
		t.Error("fragments below the word minimum must be dropped")
	}
}

func TestBuildArticleTitleFallback(t *testing.T) {
	e := NewPDFExtractor(DefaultPDFOptions())
	longFirst := strings.Repeat("word ", 30)
	art, ok := e.buildArticle([]TextBlock{block(strings.TrimSpace(longFirst), 72, 700, 1, 10)}, "")
	if !ok {
		t.Fatal("expected article")
	}
	if len(art.Title) > 103 {
		t.Errorf("fallback title should truncate to 100 chars plus ellipsis, got %d", len(art.Title))
	}
	if !strings.HasSuffix(art.Title, "...") {
		t.Error("truncated fallback title should end with ellipsis")
	}
}
