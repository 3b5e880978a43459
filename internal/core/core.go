package core

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// SourceType identifies where an article record originated.
type SourceType string

const (
	SourcePDF      SourceType = "pdf"
	SourceHTML     SourceType = "html"
	SourceReddit   SourceType = "reddit"
	SourceOSINT    SourceType = "osint"
	SourceScanner  SourceType = "scanner"
	SourceFacebook SourceType = "facebook"
)

// Status tracks an article's position in the processing pipeline.
// The happy path is monotonic: Extracted -> Summarized -> Notified.
type Status string

const (
	StatusExtracted  Status = "extracted"
	StatusSummarized Status = "summarized"
	StatusNotified   Status = "notified"
)

// statusOrder gives Status a total ordering for monotonicity checks.
var statusOrder = map[Status]int{
	StatusExtracted:  0,
	StatusSummarized: 1,
	StatusNotified:   2,
}

// Rank returns the position of the status in the pipeline ordering.
// Unknown statuses rank below Extracted.
func (s Status) Rank() int {
	if r, ok := statusOrder[s]; ok {
		return r
	}
	return -1
}

// Before reports whether s precedes other on the happy path.
func (s Status) Before(other Status) bool {
	return s.Rank() < other.Rank()
}

// Article is the canonical extracted unit stored in the article store.
// ContentHash is unique across the store; duplicate inserts merge into
// the existing row instead of creating a new one.
type Article struct {
	ID            int64          `json:"id"` // Assigned by the store on insert
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	ContentHash   string         `json:"content_hash"` // md5(title + content), unique
	URL           string         `json:"url,omitempty"`
	SourceType    SourceType     `json:"source_type"`
	SourceURL     string         `json:"source_url,omitempty"`
	SourceFile    string         `json:"source_file,omitempty"`
	PageNumber    *int           `json:"page_number,omitempty"`
	ColumnNumber  *int           `json:"column_number,omitempty"`
	Section       string         `json:"section,omitempty"` // Normalized via extract.NormalizeSection
	Author        string         `json:"author,omitempty"`
	Tags          []string       `json:"tags,omitempty"` // Ordered set
	WordCount     int            `json:"word_count"`
	DatePublished *time.Time     `json:"date_published,omitempty"`
	DateExtracted time.Time      `json:"date_extracted"`
	DateCreated   time.Time      `json:"date_created"`
	DateUpdated   time.Time      `json:"date_updated"`
	Status        Status         `json:"processing_status"`
	RawHTML       string         `json:"raw_html,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LocationName  string         `json:"location_name,omitempty"`
	LocationLat   *float64       `json:"location_lat,omitempty"`
	LocationLon   *float64       `json:"location_lon,omitempty"`
	EventDates    []Event        `json:"event_dates,omitempty"`
}

// ContentHashOf computes the canonical content hash for a title/content pair.
func ContentHashOf(title, content string) string {
	sum := md5.Sum([]byte(title + content))
	return hex.EncodeToString(sum[:])
}

// Event is a candidate calendar event extracted from article text.
type Event struct {
	Title        string     `json:"title"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	LocationName string     `json:"location_name,omitempty"`
	Context      string     `json:"context,omitempty"` // Source snippet the event was derived from
}

// Key returns the dedup key for an event: minute-truncated start time plus
// a context prefix. The same input article always yields the same key set.
func (e Event) Key() string {
	ctx := e.Context
	if len(ctx) > 80 {
		ctx = ctx[:80]
	}
	return e.StartTime.Truncate(time.Minute).Format(time.RFC3339) + "|" + ctx
}

// CanonicalJSON renders the event with sorted keys for structural equality
// comparisons during merges.
func (e Event) CanonicalJSON() string {
	m := map[string]any{
		"title":      e.Title,
		"start_time": e.StartTime.Format(time.RFC3339),
	}
	if e.EndTime != nil {
		m["end_time"] = e.EndTime.Format(time.RFC3339)
	}
	if e.LocationName != "" {
		m["location_name"] = e.LocationName
	}
	if e.Context != "" {
		m["context"] = e.Context
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// MergeEvents unions two event lists, keyed by canonical JSON so that
// structurally identical events collapse to one. Existing order wins.
func MergeEvents(existing, incoming []Event) []Event {
	seen := make(map[string]bool, len(existing))
	merged := make([]Event, 0, len(existing)+len(incoming))
	for _, e := range existing {
		k := e.CanonicalJSON()
		if !seen[k] {
			seen[k] = true
			merged = append(merged, e)
		}
	}
	for _, e := range incoming {
		k := e.CanonicalJSON()
		if !seen[k] {
			seen[k] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// MergeTags unions tag lists as an ordered set: existing order is
// preserved, new tags are appended in their own order.
func MergeTags(existing, incoming []string) []string {
	combined := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool)
	for _, t := range existing {
		norm := strings.TrimSpace(t)
		if norm != "" && !seen[norm] {
			seen[norm] = true
			combined = append(combined, norm)
		}
	}
	for _, t := range incoming {
		norm := strings.TrimSpace(t)
		if norm != "" && !seen[norm] {
			seen[norm] = true
			combined = append(combined, norm)
		}
	}
	return combined
}

// MergeMetadata shallow-merges incoming into existing; nested maps are
// merged one level deep, everything else is overwritten by the new value.
func MergeMetadata(existing, incoming map[string]any) map[string]any {
	if len(incoming) == 0 {
		return existing
	}
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		newMap, newOK := v.(map[string]any)
		oldMap, oldOK := merged[k].(map[string]any)
		if newOK && oldOK {
			sub := make(map[string]any, len(oldMap)+len(newMap))
			for sk, sv := range oldMap {
				sub[sk] = sv
			}
			for sk, sv := range newMap {
				sub[sk] = sv
			}
			merged[k] = sub
			continue
		}
		merged[k] = v
	}
	return merged
}

// PdfArticle is an article candidate produced by the PDF extractor before
// conversion into a canonical Article.
type PdfArticle struct {
	Title         string
	Content       string
	PageNumber    int
	Column        int
	X0, Y0        float64
	X1, Y1        float64
	WordCount     int
	Section       string
	DatePublished *time.Time
}

// ToArticle converts a PDF candidate into the canonical record.
func (p PdfArticle) ToArticle(sourceFile string, normalizeSection func(string) string) Article {
	page := p.PageNumber
	col := p.Column
	return Article{
		Title:         p.Title,
		Content:       p.Content,
		ContentHash:   ContentHashOf(p.Title, p.Content),
		SourceType:    SourcePDF,
		SourceFile:    sourceFile,
		PageNumber:    &page,
		ColumnNumber:  &col,
		Section:       normalizeSection(p.Section),
		WordCount:     p.WordCount,
		DatePublished: p.DatePublished,
		DateExtracted: time.Now().UTC(),
		Status:        StatusExtracted,
		Metadata: map[string]any{
			"bounds": map[string]any{
				"x0": p.X0, "y0": p.Y0, "x1": p.X1, "y1": p.Y1,
			},
		},
	}
}

// HtmlArticle is an article candidate produced by the HTML extractor.
type HtmlArticle struct {
	Title         string
	Content       string
	URL           string
	DatePublished *time.Time
	Author        string
	Section       string
	Tags          []string
	WordCount     int
	RawHTML       string
}

// ToArticle converts an HTML candidate into the canonical record.
func (h HtmlArticle) ToArticle(sourceURL string, normalizeSection func(string) string) Article {
	var meta map[string]any
	if len(h.Tags) > 0 {
		meta = map[string]any{"tags": h.Tags}
	}
	wc := h.WordCount
	if wc == 0 {
		wc = len(strings.Fields(h.Content))
	}
	return Article{
		Title:         h.Title,
		Content:       h.Content,
		ContentHash:   ContentHashOf(h.Title, h.Content),
		URL:           h.URL,
		SourceType:    SourceHTML,
		SourceURL:     sourceURL,
		Section:       normalizeSection(h.Section),
		Author:        h.Author,
		Tags:          h.Tags,
		WordCount:     wc,
		DatePublished: h.DatePublished,
		DateExtracted: time.Now().UTC(),
		Status:        StatusExtracted,
		RawHTML:       h.RawHTML,
		Metadata:      meta,
	}
}

// EditionPage is a single page within an e-edition.
type EditionPage struct {
	URL        string `json:"url"`
	PageNumber int    `json:"page_number"`
	Section    string `json:"section,omitempty"`
	Title      string `json:"title,omitempty"`
	Format     string `json:"format"` // "pdf" or "html"
}

// Edition is one day's issue of a publication, composed of ordered pages.
type Edition struct {
	Date        time.Time     `json:"date"`
	Publication string        `json:"publication"`
	BaseURL     string        `json:"base_url"`
	Pages       []EditionPage `json:"pages"`
}

// TotalPages returns the page count of the edition.
func (e Edition) TotalPages() int { return len(e.Pages) }

// PageResult reports the outcome of a single page download.
type PageResult struct {
	PageNumber int    `json:"page_number"`
	URL        string `json:"url"`
	Section    string `json:"section,omitempty"`
	Format     string `json:"format,omitempty"`
	SizeBytes  int    `json:"size_bytes,omitempty"`
	FromCache  bool   `json:"was_cached,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DownloadResult aggregates an edition download. Per-page failures are
// recorded here and never fail the edition as a whole.
type DownloadResult struct {
	EditionDate string       `json:"edition_date"`
	Publication string       `json:"publication"`
	TotalPages  int          `json:"total_pages"`
	Successful  int          `json:"successful_downloads"`
	Failed      int          `json:"failed_downloads"`
	FromCache   int          `json:"cached_pages"`
	SuccessRate float64      `json:"success_rate"`
	Pages       []PageResult `json:"downloaded_pages"`
	FailedPages []PageResult `json:"failed_pages"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
}

// Summary is the LLM-produced artifact for an article. One row exists per
// (article_id, summary_type); the batch pipeline writes type "brief".
type Summary struct {
	ID               int64  `json:"id"`
	ArticleID        int64  `json:"article_id"`
	SummaryText      string `json:"summary_text"`
	SummaryType      string `json:"summary_type"`
	ModelUsed        string `json:"model_used"`
	TokensUsed       int    `json:"tokens_used"`
	GenerationTimeMs int    `json:"generation_time_ms"`
}

// SummaryPayload is the structured response expected from the LLM.
type SummaryPayload struct {
	Summary         string       `json:"summary"`
	KeyPoints       []string     `json:"key_points"`
	Sentiment       string       `json:"sentiment"`
	Tags            []string     `json:"tags,omitempty"`
	Entities        []string     `json:"entities,omitempty"`
	Topics          []TopicScore `json:"topics,omitempty"`
	EventDates      []Event      `json:"event_dates,omitempty"`
	ConfidenceScore float64      `json:"confidence_score"`
}

// TopicScore pairs a topic label with a relevance score.
type TopicScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ProcessingRecord tracks one (date, source, identifier) processing run.
type ProcessingRecord struct {
	DateProcessed    time.Time `json:"date_processed"`
	SourceType       string    `json:"source_type"`
	SourceIdentifier string    `json:"source_identifier"`
	ArticlesFound    int       `json:"articles_found"`
	ArticlesNew      int       `json:"articles_new"`
	ArticlesDup      int       `json:"articles_duplicate"`
	ProcessingTimeMs int       `json:"processing_time_ms"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// MetricKind enumerates the taxonomy dimensions aggregated daily.
type MetricKind string

const (
	MetricSection     MetricKind = "section"
	MetricPublication MetricKind = "publication"
	MetricTag         MetricKind = "tag"
	MetricTopic       MetricKind = "topic"
	MetricEntity      MetricKind = "entity"
)

// DailyMetric is one aggregated count for a (date, kind, key) cell.
type DailyMetric struct {
	MetricDate time.Time  `json:"metric_date"`
	Kind       MetricKind `json:"kind"`
	Key        string     `json:"key"`
	Count      int        `json:"count"`
	SumScore   *float64   `json:"sum_score,omitempty"` // Topics only
}

// TrendingItem is a z-score trend computed against a trailing window.
type TrendingItem struct {
	MetricDate time.Time          `json:"metric_date"`
	Kind       MetricKind         `json:"kind"`
	Key        string             `json:"key"`
	Score      float64            `json:"score"`
	ZScore     float64            `json:"zscore"`
	Delta      float64            `json:"delta"`
	WinSize    int                `json:"win_size"`
	Details    map[string]float64 `json:"details,omitempty"`
}

// ForecastPoint is a single day of a baseline forecast series.
type ForecastPoint struct {
	Date string  `json:"date"`
	YHat float64 `json:"yhat"`
}

// OAuthToken stores provider credentials for ancillary ingesters.
type OAuthToken struct {
	Provider     string     `json:"provider"`
	Account      string     `json:"account"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}
