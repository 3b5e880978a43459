// Package discover enumerates the pages of an e-edition for a (date,
// publication) pair. Discovery is a pure function of fetched HTML plus an
// authenticated PageFetcher; it never mutates storage.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/fetch"
	"newsroom/internal/logger"
)

// DefaultPublication is used when the caller names no publication or the
// alias lookup fails.
const DefaultPublication = "smyth_county"

// publicationTabs maps publication aliases onto site slugs.
var publicationTabs = map[string]string{
	"smyth_county":      "smyth_county",
	"smyth county news": "smyth_county",
	"washington_county": "washington_county",
	"washington county": "washington_county",
	"wythe_county":      "wythe_county",
	"wythe county":      "wythe_county",
	"bristol":           "bristol",
}

var (
	indexLinkRe  = regexp.MustCompile(`(?i)\bpage\s+[a-z]?\d+\b`)
	pageNumberRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)page\s*(\d+)`),
		regexp.MustCompile(`(?i)p(\d+)`),
		regexp.MustCompile(`(\d+)`),
	}
	totalPagesRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)of\s+(\d+)`),
		regexp.MustCompile(`/\s*(\d+)`),
		regexp.MustCompile(`(?i)total:\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*pages?`),
	}
)

// knownSections is the closed set searched for in link text and URLs.
var knownSections = []string{
	"local", "sports", "opinion", "business", "obituaries",
	"classifieds", "entertainment", "news", "editorial",
}

// Discoverer finds edition pages on the remote site.
type Discoverer struct {
	fetcher fetch.PageFetcher
	baseURL string
	log     zerolog.Logger
}

// New builds a discoverer over an authenticated fetcher. baseURL is the
// site root hosting the e-editions (without the publication path).
func New(fetcher fetch.PageFetcher, baseURL string) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.With("discover"),
	}
}

// ResolvePublication maps a free-form publication name to a site slug,
// falling back to the default publication.
func ResolvePublication(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultPublication
	}
	if slug, ok := publicationTabs[key]; ok {
		return slug
	}
	key = strings.ReplaceAll(key, " ", "_")
	if slug, ok := publicationTabs[key]; ok {
		return slug
	}
	return DefaultPublication
}

// Publications lists the supported publication slugs.
func Publications() []string {
	set := map[string]bool{}
	for _, slug := range publicationTabs {
		set[slug] = true
	}
	out := make([]string, 0, len(set))
	for slug := range set {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Discover enumerates the pages of one edition. Within an edition,
// duplicate URLs keep the first-seen entry, and pages are ordered by
// (page_number, section) as a best-effort key.
func (d *Discoverer) Discover(ctx context.Context, date time.Time, publication string) (*core.Edition, error) {
	slug := ResolvePublication(publication)
	editionURL := fmt.Sprintf("%s/eedition/%s/", d.baseURL, slug)
	if !date.Equal(today()) {
		editionURL = fmt.Sprintf("%s?date=%s", editionURL, date.Format("2006-01-02"))
	}

	res, err := d.fetcher.Fetch(ctx, editionURL)
	if err != nil {
		return nil, fmt.Errorf("discover: index fetch failed: %w", err)
	}
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("discover: index returned status %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("discover: index parse failed: %w", err)
	}

	base := res.FinalURL
	if base == "" {
		base = editionURL
	}

	pages := d.collectIndexPageLinks(doc, base)
	if len(pages) > 0 {
		d.log.Info().Int("pages", len(pages)).Msg("found page links from edition index")
	}
	if len(pages) == 0 {
		pages = d.collectPDFLinks(doc, base)
		if len(pages) > 0 {
			d.log.Info().Int("pages", len(pages)).Msg("found PDF links")
		}
	}
	if len(pages) == 0 {
		pages = d.collectThumbnails(doc, base)
		if len(pages) > 0 {
			d.log.Info().Int("pages", len(pages)).Msg("found page thumbnails")
		}
	}
	if len(pages) == 0 {
		pages = d.collectViewerIframe(ctx, doc, base)
	}
	if len(pages) == 0 {
		pages = d.synthesizeFromPageCount(doc, base)
	}
	if len(pages) == 0 {
		// Single-page fallback: at minimum the edition index itself.
		d.log.Warn().Msg("no specific pages found, falling back to index page")
		pages = []core.EditionPage{{URL: editionURL, PageNumber: 1, Format: "html"}}
	}

	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].PageNumber != pages[j].PageNumber {
			return pages[i].PageNumber < pages[j].PageNumber
		}
		return pages[i].Section < pages[j].Section
	})

	edition := &core.Edition{
		Date:        date,
		Publication: slug,
		BaseURL:     editionURL,
		Pages:       pages,
	}
	d.log.Info().Int("pages", len(pages)).Str("publication", slug).
		Str("date", date.Format("2006-01-02")).Msg("edition discovered")
	return edition, nil
}

// collectIndexPageLinks harvests "Page A1"-style anchors from the landing
// index (strategy a).
func (d *Discoverer) collectIndexPageLinks(doc *goquery.Document, base string) []core.EditionPage {
	var pages []core.EditionPage
	seen := map[string]bool{}

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" || !indexLinkRe.MatchString(text) {
			return
		}

		href, ok := sel.Attr("data-download")
		if !ok || href == "" {
			href, _ = sel.Attr("href")
		}
		abs := d.normalizeURL(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true

		format := "html"
		if strings.HasSuffix(strings.ToLower(abs), ".pdf") {
			format = "pdf"
		}

		pages = append(pages, core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(text, abs, len(pages)+1),
			Section:    extractSection(text, abs),
			Title:      text,
			Format:     format,
		})
	})
	return pages
}

// collectPDFLinks harvests direct PDF download anchors (strategy b).
func (d *Discoverer) collectPDFLinks(doc *goquery.Document, base string) []core.EditionPage {
	var pages []core.EditionPage
	seen := map[string]bool{}

	doc.Find("a[href*='.pdf'], a[download], a[title*='PDF'], a[aria-label*='PDF']").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		abs := d.normalizeURL(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true

		text := strings.TrimSpace(sel.Text())
		title, _ := sel.Attr("title")
		aria, _ := sel.Attr("aria-label")
		combined := strings.Join([]string{text, title, aria}, " ")

		page := core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(combined, abs, i+1),
			Section:    extractSection(combined, abs),
			Format:     "pdf",
		}
		if text != "" {
			page.Title = text
		}
		pages = append(pages, page)
	})
	return pages
}

// collectThumbnails walks thumbnail grids (strategy c).
func (d *Discoverer) collectThumbnails(doc *goquery.Document, base string) []core.EditionPage {
	var pages []core.EditionPage
	seen := map[string]bool{}

	selector := "img[class*='thumb'], img[class*='page'], div[class*='thumb'] img, " +
		"div[class*='page-thumb'] img, .page-thumbnail img, .edition-page img"
	doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		var href string
		if parent := sel.Closest("a"); parent.Length() > 0 {
			href, _ = parent.Attr("href")
		} else if pageID, ok := firstAttr(sel, "data-page", "data-page-id"); ok {
			href = fmt.Sprintf("%s/download/page_%s.pdf", strings.TrimRight(base, "/"), pageID)
		} else if src, ok := sel.Attr("src"); ok {
			href = strings.NewReplacer("/thumb/", "/pdf/", ".jpg", ".pdf", ".png", ".pdf").Replace(src)
		}

		abs := d.normalizeURL(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true

		alt, _ := sel.Attr("alt")
		title, _ := sel.Attr("title")
		combined := alt + " " + title

		format := "html"
		if strings.Contains(abs, ".pdf") {
			format = "pdf"
		}
		page := core.EditionPage{
			URL:        abs,
			PageNumber: extractPageNumber(combined, abs, i+1),
			Section:    extractSection(combined, abs),
			Format:     format,
		}
		if t := strings.TrimSpace(firstNonEmpty(alt, title)); t != "" {
			page.Title = t
		}
		pages = append(pages, page)
	})
	return pages
}

// collectViewerIframe follows an embedded viewer iframe and re-scans its
// content (strategy d).
func (d *Discoverer) collectViewerIframe(ctx context.Context, doc *goquery.Document, base string) []core.EditionPage {
	iframe := doc.Find("iframe[src*='pagesuite'], iframe[src*='edition'], iframe[id*='viewer']").First()
	if iframe.Length() == 0 {
		return nil
	}
	src, ok := iframe.Attr("src")
	if !ok {
		return nil
	}
	abs := d.normalizeURL(base, src)
	if abs == "" {
		return nil
	}
	d.log.Info().Str("iframe", abs).Msg("following viewer iframe")

	res, err := d.fetcher.Fetch(ctx, abs)
	if err != nil || res.StatusCode != 200 {
		return nil
	}
	inner, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil
	}

	var pages []core.EditionPage
	seen := map[string]bool{}
	inner.Find(".page-item, .page-tile, .edition-page-item, [data-page-number], [data-page-id]").Each(func(_ int, sel *goquery.Selection) {
		num := 0
		if raw, ok := firstAttr(sel, "data-page-number", "data-page"); ok {
			num, _ = strconv.Atoi(raw)
		}
		if num == 0 {
			if m := regexp.MustCompile(`\d+`).FindString(sel.Text()); m != "" {
				num, _ = strconv.Atoi(m)
			}
		}
		if num == 0 {
			num = len(pages) + 1
		}

		var href string
		if link := sel.Find("a[download], a[href*='.pdf']").First(); link.Length() > 0 {
			href, _ = link.Attr("href")
		} else {
			href = fmt.Sprintf("%s/download/page_%d.pdf", strings.TrimRight(base, "/"), num)
		}
		pageURL := d.normalizeURL(abs, href)
		if pageURL == "" || seen[pageURL] {
			return
		}
		seen[pageURL] = true

		format := "html"
		if strings.Contains(pageURL, ".pdf") {
			format = "pdf"
		}
		pages = append(pages, core.EditionPage{URL: pageURL, PageNumber: num, Format: format})
	})
	if len(pages) > 0 {
		d.log.Info().Int("pages", len(pages)).Msg("found pages in viewer")
	}
	return pages
}

// synthesizeFromPageCount reads a total page count from navigation text
// and generates URLs from the common download pattern (strategy e).
func (d *Discoverer) synthesizeFromPageCount(doc *goquery.Document, base string) []core.EditionPage {
	nav := doc.Find("[class*='page-count'], [class*='total-pages'], [data-total-pages], .navigation-info").First()
	if nav.Length() == 0 {
		return nil
	}
	total := extractTotalPages(nav.Text())
	if total == 0 {
		return nil
	}
	d.log.Info().Int("pages", total).Msg("synthesizing page urls from navigation count")

	pages := make([]core.EditionPage, 0, total)
	for n := 1; n <= total; n++ {
		pages = append(pages, core.EditionPage{
			URL:        fmt.Sprintf("%s/download/page_%d.pdf", strings.TrimRight(base, "/"), n),
			PageNumber: n,
			Format:     "pdf",
		})
	}
	return pages
}

// normalizeURL converts relative and protocol-relative hrefs into absolute
// URLs; javascript: and fragment-only links are dropped.
func (d *Discoverer) normalizeURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return d.baseURL + href
	}
	baseParsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	rel, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseParsed.ResolveReference(rel).String()
}

// extractPageNumber tries the page-number regex family over link text and
// URL; fallback is the ordinal position.
func extractPageNumber(text, pageURL string, fallback int) int {
	for _, re := range pageNumberRe {
		if m := re.FindStringSubmatch(strings.ToLower(text)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		if m := re.FindStringSubmatch(strings.ToLower(pageURL)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return fallback
}

// extractSection looks for a known section name in link text or URL.
func extractSection(text, pageURL string) string {
	textLower := strings.ToLower(text)
	urlLower := strings.ToLower(pageURL)
	for _, section := range knownSections {
		if strings.Contains(textLower, section) || strings.Contains(urlLower, section) {
			return strings.ToUpper(section[:1]) + section[1:]
		}
	}
	return ""
}

// extractTotalPages parses a total page count out of navigation text,
// falling back to the largest number present.
func extractTotalPages(navText string) int {
	lower := strings.ToLower(navText)
	for _, re := range totalPagesRe {
		if m := re.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	max := 0
	for _, m := range regexp.MustCompile(`\d+`).FindAllString(navText, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > max {
			max = n
		}
	}
	return max
}

func firstAttr(sel *goquery.Selection, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
