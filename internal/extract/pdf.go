package extract

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// TextBlock is a positioned run of text on a PDF page.
type TextBlock struct {
	Text     string
	X0, Y0   float64
	X1, Y1   float64
	Page     int
	FontSize float64
	Column   int
	IsTitle  bool
}

// PDFOptions tune layout segmentation and article filtering.
type PDFOptions struct {
	ColumnThreshold    float64 // Minimum x-distance between columns in points
	TitleFontThreshold float64 // Multiplier over column-average font size for title detection
	MinArticleWords    int     // Minimum words for a valid article
}

// DefaultPDFOptions returns the production thresholds.
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		ColumnThreshold:    50.0,
		TitleFontThreshold: 1.2,
		MinArticleWords:    10,
	}
}

// PDFExtractor segments multi-column newspaper PDFs into articles.
type PDFExtractor struct {
	opts PDFOptions
	log  zerolog.Logger
}

// NewPDFExtractor builds an extractor with the given options.
func NewPDFExtractor(opts PDFOptions) *PDFExtractor {
	if opts.ColumnThreshold == 0 {
		opts = DefaultPDFOptions()
	}
	return &PDFExtractor{opts: opts, log: logger.With("pdf_extract")}
}

var newsTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z][A-Z\s]{5,}$`),     // All caps headline
	regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+`), // Title case opener
	regexp.MustCompile(`^\w+: `),                 // Dateline
}

// ExtractBytes parses PDF bytes into article candidates: text blocks with
// geometry, column segmentation per page, then title-boundary detection
// within each column.
func (e *PDFExtractor) ExtractBytes(data []byte, filename string) ([]core.PdfArticle, error) {
	blocks, err := e.extractTextBlocks(data)
	if err != nil {
		return nil, fmt.Errorf("extract: pdf parse failed for %s: %w", filename, err)
	}

	columns := e.segmentColumns(blocks)

	var articles []core.PdfArticle
	for _, column := range columns {
		articles = append(articles, e.extractArticlesFromColumn(column)...)
	}

	e.log.Info().Int("articles", len(articles)).Str("file", filename).Msg("pdf extraction complete")
	return articles, nil
}

// extractTextBlocks reads positioned text runs from every page and
// assembles them into blocks: fragments sharing a line are joined, and
// adjacent lines with compatible left edges merge into one block.
func (e *PDFExtractor) extractTextBlocks(data []byte) ([]TextBlock, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var blocks []TextBlock
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		blocks = append(blocks, assembleBlocks(content.Text, pageNum)...)
	}
	return blocks, nil
}

// line groups raw text fragments that share a baseline.
type line struct {
	texts    []pdf.Text
	y        float64
	x0, x1   float64
	fontSize float64
}

// assembleBlocks turns character/word fragments into lines, then merges
// vertically adjacent lines with similar left edges into blocks.
func assembleBlocks(texts []pdf.Text, pageNum int) []TextBlock {
	if len(texts) == 0 {
		return nil
	}

	// Bucket fragments into lines by baseline.
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > 2 {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []line
	for _, t := range sorted {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-t.Y) <= 2 {
			cur := &lines[n-1]
			cur.texts = append(cur.texts, t)
			cur.x1 = math.Max(cur.x1, t.X+t.W)
			if t.FontSize > 0 {
				cur.fontSize = (cur.fontSize + t.FontSize) / 2
			}
			continue
		}
		lines = append(lines, line{
			texts:    []pdf.Text{t},
			y:        t.Y,
			x0:       t.X,
			x1:       t.X + t.W,
			fontSize: t.FontSize,
		})
	}

	// Merge lines into blocks: small vertical gap and a compatible left
	// edge means the same paragraph.
	var blocks []TextBlock
	var cur *TextBlock
	var lastY float64
	for _, ln := range lines {
		text := joinLine(ln.texts)
		if text == "" {
			continue
		}
		gapLimit := math.Max(ln.fontSize*1.8, 14)
		if cur != nil && lastY-ln.y < gapLimit && math.Abs(cur.X0-ln.x0) < 12 {
			cur.Text += "\n" + text
			cur.Y0 = ln.y
			cur.X1 = math.Max(cur.X1, ln.x1)
			if ln.fontSize > 0 {
				cur.FontSize = (cur.FontSize + ln.fontSize) / 2
			}
		} else {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			cur = &TextBlock{
				Text:     text,
				X0:       ln.x0,
				Y0:       ln.y,
				X1:       ln.x1,
				Y1:       ln.y + ln.fontSize,
				Page:     pageNum,
				FontSize: ln.fontSize,
			}
		}
		lastY = ln.y
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// joinLine concatenates fragments of a line, inserting spaces at visible
// gaps between runs.
func joinLine(texts []pdf.Text) string {
	var b strings.Builder
	var lastEnd float64
	for i, t := range texts {
		if i > 0 && t.X-lastEnd > 1 {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	return strings.TrimSpace(b.String())
}

// segmentColumns groups blocks per page into columns by x-coordinate:
// sorted by x0, a block joins the current column while its left edge is
// within ColumnThreshold of the previous block's. Columns read
// top-to-bottom (descending y0).
func (e *PDFExtractor) segmentColumns(blocks []TextBlock) [][]TextBlock {
	if len(blocks) == 0 {
		return nil
	}

	pages := map[int][]TextBlock{}
	var pageOrder []int
	for _, b := range blocks {
		if _, ok := pages[b.Page]; !ok {
			pageOrder = append(pageOrder, b.Page)
		}
		pages[b.Page] = append(pages[b.Page], b)
	}
	sort.Ints(pageOrder)

	var allColumns [][]TextBlock
	for _, pageNum := range pageOrder {
		pageBlocks := pages[pageNum]
		sort.SliceStable(pageBlocks, func(i, j int) bool {
			return pageBlocks[i].X0 < pageBlocks[j].X0
		})

		var columns [][]TextBlock
		var current []TextBlock
		lastX := math.NaN()
		for i := range pageBlocks {
			b := pageBlocks[i]
			if math.IsNaN(lastX) || math.Abs(b.X0-lastX) < e.opts.ColumnThreshold {
				b.Column = len(columns)
				current = append(current, b)
			} else {
				if len(current) > 0 {
					columns = append(columns, current)
				}
				b.Column = len(columns)
				current = []TextBlock{b}
			}
			lastX = b.X0
		}
		if len(current) > 0 {
			columns = append(columns, current)
		}

		for _, column := range columns {
			sort.SliceStable(column, func(i, j int) bool {
				return column[i].Y0 > column[j].Y0
			})
		}
		allColumns = append(allColumns, columns...)
	}
	return allColumns
}

// extractArticlesFromColumn splits a column at title blocks: each detected
// title closes the running article and opens a new one.
func (e *PDFExtractor) extractArticlesFromColumn(column []TextBlock) []core.PdfArticle {
	var articles []core.PdfArticle
	var current []TextBlock
	var currentTitle string

	var fontSum float64
	var fontCount int
	for _, b := range column {
		if b.FontSize > 0 {
			fontSum += b.FontSize
			fontCount++
		}
	}
	avgFont := 12.0
	if fontCount > 0 {
		avgFont = fontSum / float64(fontCount)
	}

	for _, block := range column {
		isTitle := e.isLikelyTitle(block, avgFont)

		switch {
		case isTitle && len(current) > 0:
			if article, ok := e.buildArticle(current, currentTitle); ok {
				articles = append(articles, article)
			}
			current = nil
			currentTitle = strings.TrimSpace(block.Text)
		case isTitle:
			currentTitle = strings.TrimSpace(block.Text)
		default:
			current = append(current, block)
		}
	}

	if len(current) > 0 {
		if article, ok := e.buildArticle(current, currentTitle); ok {
			articles = append(articles, article)
		}
	}
	return articles
}

// isLikelyTitle applies the title heuristics: oversized font, short
// all-caps, short title-case without terminal punctuation, or a news
// pattern match.
func (e *PDFExtractor) isLikelyTitle(block TextBlock, avgFont float64) bool {
	if block.FontSize > 0 && block.FontSize > avgFont*e.opts.TitleFontThreshold {
		return true
	}

	text := strings.TrimSpace(block.Text)
	words := strings.Fields(text)

	if text == strings.ToUpper(text) && text != strings.ToLower(text) && len(words) <= 8 {
		return true
	}

	if isTitleCase(words) && len(words) <= 10 &&
		!strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		return true
	}

	for _, re := range newsTitlePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// isTitleCase reports whether every word starts with an uppercase letter.
func isTitleCase(words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		r := rune(w[0])
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

var (
	multiBlankRe = regexp.MustCompile(`\n\s*\n`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	wsRe         = regexp.MustCompile(`\s+`)
)

// buildArticle assembles a candidate from a run of content blocks. Short
// fragments below the word minimum are dropped.
func (e *PDFExtractor) buildArticle(blocks []TextBlock, title string) (core.PdfArticle, bool) {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, strings.TrimSpace(b.Text))
	}
	content := strings.TrimSpace(strings.Join(parts, "\n"))
	content = multiBlankRe.ReplaceAllString(content, "\n\n")
	content = spaceRunRe.ReplaceAllString(content, " ")

	wordCount := len(strings.Fields(content))
	if wordCount < e.opts.MinArticleWords {
		return core.PdfArticle{}, false
	}

	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, b := range blocks {
		x0 = math.Min(x0, b.X0)
		y0 = math.Min(y0, b.Y0)
		x1 = math.Max(x1, b.X1)
		y1 = math.Max(y1, b.Y1)
	}

	if title != "" {
		title = wsRe.ReplaceAllString(title, " ")
		if len(title) > 200 {
			title = title[:200]
		}
	} else {
		firstLine := content
		if i := strings.IndexByte(content, '\n'); i != -1 {
			firstLine = content[:i]
		}
		if len(firstLine) > 100 {
			title = firstLine[:100] + "..."
		} else {
			title = firstLine
		}
	}

	first := blocks[0]
	return core.PdfArticle{
		Title:      title,
		Content:    content,
		PageNumber: first.Page,
		Column:     first.Column,
		X0:         x0,
		Y0:         y0,
		X1:         x1,
		Y1:         y1,
		WordCount:  wordCount,
	}, true
}
