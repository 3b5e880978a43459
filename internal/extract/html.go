package extract

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// HTMLOptions tune HTML article extraction.
type HTMLOptions struct {
	MinArticleWords int
	IncludeRawHTML  bool
}

// DefaultHTMLOptions returns the production thresholds.
func DefaultHTMLOptions() HTMLOptions {
	return HTMLOptions{MinArticleWords: 10}
}

// HTMLExtractor pulls the main article plus secondary articles out of a
// page: a boilerplate-removal pass first, then a scan over common article
// container selectors.
type HTMLExtractor struct {
	opts HTMLOptions
	log  zerolog.Logger
}

// NewHTMLExtractor builds an extractor with the given options.
func NewHTMLExtractor(opts HTMLOptions) *HTMLExtractor {
	if opts.MinArticleWords == 0 {
		opts.MinArticleWords = DefaultHTMLOptions().MinArticleWords
	}
	return &HTMLExtractor{opts: opts, log: logger.With("html_extract")}
}

// secondarySelectors is the closed set of containers scanned for
// additional articles on multi-story pages.
var secondarySelectors = []string{
	"article",
	".article",
	".post",
	".news-item",
	".story",
	"[class*='article']",
	"[class*='story']",
	".content-item",
}

var pageNameRe = regexp.MustCompile(`(?i)page_(\d+)`)

// ExtractHTML extracts all article candidates from a page. Candidates are
// deduplicated by content hash within the page.
func (e *HTMLExtractor) ExtractHTML(htmlContent string, sourceURL string) ([]core.HtmlArticle, error) {
	var articles []core.HtmlArticle

	if main := e.extractMainArticle(htmlContent, sourceURL); main != nil {
		articles = append(articles, *main)
	}
	articles = append(articles, e.extractSecondaryArticles(htmlContent, sourceURL)...)

	articles = dedupeByHash(articles)
	e.log.Info().Int("articles", len(articles)).Msg("html extraction complete")
	return articles, nil
}

// extractMainArticle runs the boilerplate-removal pass.
func (e *HTMLExtractor) extractMainArticle(htmlContent, sourceURL string) *core.HtmlArticle {
	var pageURL *url.URL
	if sourceURL != "" {
		pageURL, _ = url.Parse(sourceURL)
	}

	parsed, err := readability.FromReader(bytes.NewReader([]byte(htmlContent)), pageURL)
	if err != nil {
		e.log.Warn().Err(err).Msg("main article extraction failed")
		return nil
	}

	content := strings.TrimSpace(parsed.TextContent)
	if len(strings.Fields(content)) < e.opts.MinArticleWords {
		return nil
	}

	section := parsed.SiteName
	if section == "" {
		section = sectionFromURL(sourceURL)
	}

	article := &core.HtmlArticle{
		Title:         e.resolveTitle(parsed.Title, content, sourceURL),
		Content:       content,
		URL:           sourceURL,
		DatePublished: parsed.PublishedTime,
		Author:        strings.TrimSpace(parsed.Byline),
		Section:       section,
		WordCount:     len(strings.Fields(content)),
	}
	if e.opts.IncludeRawHTML {
		article.RawHTML = htmlContent
	}
	return article
}

// extractSecondaryArticles scans container selectors for further stories,
// filtering out nested containers so the same story is not counted twice.
func (e *HTMLExtractor) extractSecondaryArticles(htmlContent, sourceURL string) []core.HtmlArticle {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		e.log.Warn().Err(err).Msg("secondary article scan failed")
		return nil
	}

	// Collect candidates across all selectors, once per underlying node:
	// containers routinely match several selectors at once.
	var found []*goquery.Selection
	seenNodes := map[*html.Node]bool{}
	for _, selector := range secondarySelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if len(sel.Nodes) == 0 || seenNodes[sel.Nodes[0]] {
				return
			}
			seenNodes[sel.Nodes[0]] = true
			found = append(found, sel)
		})
	}
	unique := filterNested(found)

	var articles []core.HtmlArticle
	for _, sel := range unique {
		if article := e.extractFromElement(sel, sourceURL); article != nil {
			articles = append(articles, *article)
		}
	}
	return articles
}

// filterNested drops elements contained within another candidate element.
func filterNested(elements []*goquery.Selection) []*goquery.Selection {
	var unique []*goquery.Selection
	for _, el := range elements {
		nested := false
		for _, other := range elements {
			if other == el {
				continue
			}
			contained := false
			other.Find("*").EachWithBreak(func(_ int, child *goquery.Selection) bool {
				if child.Length() > 0 && el.Length() > 0 && child.Nodes[0] == el.Nodes[0] {
					contained = true
					return false
				}
				return true
			})
			if contained {
				nested = true
				break
			}
		}
		if !nested {
			unique = append(unique, el)
		}
	}
	return unique
}

var (
	titleSelectors = []string{
		"h1", "h2", "h3",
		".title", ".headline", ".article-title",
		"[class*='title']", "[class*='headline']",
	}
	authorSelectors = []string{
		".author", ".byline", ".writer",
		"[class*='author']", "[class*='byline']",
		"[rel='author']",
	}
	dateSelectors = []string{
		".date", ".published", ".timestamp",
		"[class*='date']", "[class*='time']",
	}
	sectionSelectors = []string{
		".section", ".category", ".topic",
		"[class*='section']", "[class*='category']",
	}
	authorPrefixRe = regexp.MustCompile(`(?i)^(by|author|written by)\s*:?\s*`)
)

// extractFromElement builds a candidate from a single container element.
func (e *HTMLExtractor) extractFromElement(sel *goquery.Selection, sourceURL string) *core.HtmlArticle {
	rawTitle := ""
	for _, ts := range titleSelectors {
		if el := sel.Find(ts).First(); el.Length() > 0 {
			if t := strings.TrimSpace(el.Text()); len(t) > 5 {
				if len(t) > 200 {
					t = t[:200]
				}
				rawTitle = t
				break
			}
		}
	}

	// Clone and strip heading elements so titles are not duplicated into
	// the body text.
	content := extractElementText(sel)
	if content == "" || len(strings.Fields(content)) < e.opts.MinArticleWords {
		return nil
	}

	section := ""
	for _, ss := range sectionSelectors {
		if el := sel.Find(ss).First(); el.Length() > 0 {
			if s := strings.TrimSpace(el.Text()); s != "" {
				if len(s) > 50 {
					s = s[:50]
				}
				section = s
				break
			}
		}
	}
	if section == "" {
		section = sectionFromURL(sourceURL)
	}

	article := &core.HtmlArticle{
		Title:         e.resolveTitle(rawTitle, content, sourceURL),
		Content:       content,
		URL:           sourceURL,
		DatePublished: extractElementDate(sel),
		Author:        extractElementAuthor(sel),
		Section:       section,
		WordCount:     len(strings.Fields(content)),
	}
	if e.opts.IncludeRawHTML {
		if html, err := goquery.OuterHtml(sel); err == nil {
			article.RawHTML = html
		}
	}
	return article
}

// extractElementText pulls the text of an element minus its headings.
func extractElementText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("h1, h2, h3").Remove()

	content := strings.TrimSpace(clone.Text())
	content = multiBlankRe.ReplaceAllString(content, "\n\n")
	content = spaceRunRe.ReplaceAllString(content, " ")
	return content
}

func extractElementAuthor(sel *goquery.Selection) string {
	for _, as := range authorSelectors {
		if el := sel.Find(as).First(); el.Length() > 0 {
			author := strings.TrimSpace(el.Text())
			if author == "" {
				continue
			}
			author = authorPrefixRe.ReplaceAllString(author, "")
			if len(author) > 100 {
				author = author[:100]
			}
			return author
		}
	}
	return ""
}

func extractElementDate(sel *goquery.Selection) *time.Time {
	var found *time.Time
	sel.Find("[datetime]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		raw, _ := el.Attr("datetime")
		if t, err := time.Parse(time.RFC3339, strings.Replace(raw, "Z", "+00:00", 1)); err == nil {
			found = &t
			return false
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			found = &t
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	for _, ds := range dateSelectors {
		if el := sel.Find(ds).First(); el.Length() > 0 {
			if t := ParseDateText(el.Text()); t != nil {
				return t
			}
		}
	}
	return nil
}

var (
	isoDateRe  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	usDateRe   = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
	longDateRe = regexp.MustCompile(`(\w+ \d{1,2}, \d{4})`)
)

// ParseDateText recognizes ISO, US numeric, and long-form dates in text.
func ParseDateText(text string) *time.Time {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			return &t
		}
	}
	if m := usDateRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("1/2/2006", m[1]); err == nil {
			return &t
		}
	}
	if m := longDateRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("January 2, 2006", m[1]); err == nil {
			return &t
		}
	}
	return nil
}

// resolveTitle picks the best available title: the raw title when
// meaningful, else the first substantial content line, else a name
// derived from the source URL, else "Untitled Article".
func (e *HTMLExtractor) resolveTitle(rawTitle, content, sourceURL string) string {
	title := strings.TrimSpace(rawTitle)
	if title != "" && !strings.HasPrefix(strings.ToLower(title), "untitled") {
		if len(title) > 200 {
			title = title[:200]
		}
		return title
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(strings.Fields(line)) >= 3 {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}

	if sourceURL != "" {
		name := sourceURL
		if parsed, err := url.Parse(sourceURL); err == nil && parsed.Path != "" {
			name = path.Base(parsed.Path)
		}
		if m := pageNameRe.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return "Page " + strconv.Itoa(n)
			}
		}
		pretty := strings.NewReplacer("_", " ", "-", " ").Replace(name)
		pretty = strings.TrimSpace(pretty)
		if pretty != "" {
			pretty = titleCase(pretty)
			if len(pretty) > 200 {
				pretty = pretty[:200]
			}
			return pretty
		}
	}
	return "Untitled Article"
}

// sectionFromURL derives a section label from the first URL path segment.
func sectionFromURL(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(parsed.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 {
		return titleCase(strings.ReplaceAll(parts[0], "-", " "))
	}
	return ""
}

// dedupeByHash keeps the first candidate for each content hash. The hash
// covers the whitespace-normalized title and body, with a leading copy of
// the title dropped from the body, so the main pass (whose text keeps the
// heading) and a secondary container (whose text drops it) agree.
func dedupeByHash(articles []core.HtmlArticle) []core.HtmlArticle {
	seen := map[string]bool{}
	var unique []core.HtmlArticle
	for _, a := range articles {
		title := strings.Join(strings.Fields(a.Title), " ")
		body := strings.Join(strings.Fields(a.Content), " ")
		body = strings.TrimSpace(strings.TrimPrefix(body, title))
		h := core.ContentHashOf(title, body)
		if !seen[h] {
			seen[h] = true
			unique = append(unique, a)
		}
	}
	return unique
}
