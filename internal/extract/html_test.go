package extract

import (
	"strings"
	"testing"
)

const multiStoryHTML = `<html><head><title>Herald</title></head><body>
<div class="story">
  <h2>Council Approves New Budget Plan</h2>
  <p>The town council voted unanimously on Tuesday to approve a new budget
  that raises school funding and keeps the property tax rate level for the
  coming fiscal year.</p>
  <span class="byline">By Jane Smith</span>
  <span class="date">2025-06-01</span>
</div>
<div class="story">
  <h2>Library Expands Weekend Hours</h2>
  <p>The county library system announced that all branches will extend
  their weekend hours beginning next month after a successful pilot at the
  main branch drew record visits.</p>
</div>
</body></html>`

func TestExtractSecondaryArticles(t *testing.T) {
	e := NewHTMLExtractor(HTMLOptions{MinArticleWords: 10})
	articles := e.extractSecondaryArticles(multiStoryHTML, "https://example.com/news/local")

	if len(articles) != 2 {
		t.Fatalf("expected 2 secondary articles, got %d", len(articles))
	}

	first := articles[0]
	if first.Title != "Council Approves New Budget Plan" {
		t.Errorf("wrong title: %q", first.Title)
	}
	if strings.Contains(first.Content, "Council Approves") {
		t.Error("headings should be stripped from content")
	}
	if first.Author != "Jane Smith" {
		t.Errorf("byline prefix should be stripped, got %q", first.Author)
	}
	if first.DatePublished == nil || first.DatePublished.Day() != 1 {
		t.Error("date should be parsed from the date element")
	}
	if first.WordCount < 10 {
		t.Errorf("word count too low: %d", first.WordCount)
	}
}

func TestExtractSecondaryFiltersShort(t *testing.T) {
	html := `<html><body><div class="story"><h2>Too Short Here Now</h2><p>only a few words</p></div></body></html>`
	e := NewHTMLExtractor(HTMLOptions{MinArticleWords: 10})
	articles := e.extractSecondaryArticles(html, "")
	if len(articles) != 0 {
		t.Errorf("short candidates should be dropped, got %d", len(articles))
	}
}

func TestExtractHTMLDedupesByHash(t *testing.T) {
	// The same story is found by the main-article pass and by the secondary
	// selectors; the page-level dedup should keep one copy.
	html := `<html><body>
    <article class="story">
      <h2>Single Story Appears Once</h2>
      <p>A longer body with enough words to pass the minimum article word
      count filter applied during extraction of candidates.</p>
    </article>
    </body></html>`

	e := NewHTMLExtractor(HTMLOptions{MinArticleWords: 10})
	articles, err := e.ExtractHTML(html, "https://example.com/news/item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	titles := map[string]int{}
	for _, a := range articles {
		titles[a.Title]++
	}
	for title, n := range titles {
		if n > 1 {
			t.Errorf("story %q extracted %d times", title, n)
		}
	}
}

func TestResolveTitleChain(t *testing.T) {
	e := NewHTMLExtractor(DefaultHTMLOptions())

	if got := e.resolveTitle("A Real Title", "content", ""); got != "A Real Title" {
		t.Errorf("raw title should win, got %q", got)
	}

	content := "short\nThe first substantial line of the article body\nmore text"
	if got := e.resolveTitle("", content, ""); got != "The first substantial line of the article body" {
		t.Errorf("first substantial content line should be used, got %q", got)
	}

	if got := e.resolveTitle("", "", "https://example.com/editions/page_007.html"); got != "Page 7" {
		t.Errorf("page number should come from the url, got %q", got)
	}

	if got := e.resolveTitle("", "", ""); got != "Untitled Article" {
		t.Errorf("final fallback should be Untitled Article, got %q", got)
	}

	if got := e.resolveTitle("Untitled document", "word one two three", ""); got == "Untitled document" {
		t.Error("untitled-prefixed raw titles should be skipped")
	}
}

func TestParseDateText(t *testing.T) {
	if ParseDateText("published 2025-06-01 today") == nil {
		t.Error("iso date should parse")
	}
	if ParseDateText("6/1/2025") == nil {
		t.Error("us date should parse")
	}
	if got := ParseDateText("June 1, 2025"); got == nil || got.Month() != 6 {
		t.Error("long form date should parse")
	}
	if ParseDateText("no date here") != nil {
		t.Error("garbage should not parse")
	}
}

func TestSectionFromURL(t *testing.T) {
	if got := sectionFromURL("https://example.com/local-news/story-123"); got != "Local News" {
		t.Errorf("expected section from first path segment, got %q", got)
	}
	if got := sectionFromURL("https://example.com/onlyone"); got != "" {
		t.Errorf("single-segment paths have no section, got %q", got)
	}
}
