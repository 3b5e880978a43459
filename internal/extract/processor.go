package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/cache"
	"newsroom/internal/core"
	"newsroom/internal/logger"
	"newsroom/internal/store"
)

// blobCache is the slice of the object cache the processor reads.
type blobCache interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (*cache.Object, error)
}

// articleStore is the slice of the article store the processor writes.
type articleStore interface {
	StoreArticles(ctx context.Context, articles []core.Article, sourceID, sourceType string) (store.StoreResult, error)
	WasProcessed(ctx context.Context, day time.Time, sourceType, sourceID string) (bool, error)
}

// FileResult reports the outcome of extracting one cached blob.
type FileResult struct {
	ObjectName       string `json:"object_name"`
	FileType         string `json:"file_type"`
	Status           string `json:"status"` // processed, skipped, failed
	ArticlesFound    int    `json:"articles_found"`
	ArticlesNew      int    `json:"articles_new"`
	ArticlesDup      int    `json:"articles_duplicate"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ProcessingTimeMs int    `json:"processing_time_ms"`
}

// EditionResult aggregates extraction over one edition date.
type EditionResult struct {
	EditionDate      string       `json:"edition_date"`
	TotalFiles       int          `json:"total_files"`
	ProcessedFiles   int          `json:"processed_files"`
	SkippedFiles     int          `json:"skipped_files"`
	FailedFiles      int          `json:"failed_files"`
	TotalArticles    int          `json:"total_articles"`
	NewArticles      int          `json:"new_articles"`
	DuplicateCount   int          `json:"duplicate_articles"`
	ProcessingTimeMs int          `json:"processing_time_ms"`
	Files            []FileResult `json:"files"`
}

// Processor routes cached blobs through the PDF and HTML extractors and
// stores the resulting canonical articles.
type Processor struct {
	cache blobCache
	store articleStore
	pdf   *PDFExtractor
	html  *HTMLExtractor
	log   zerolog.Logger
}

// NewProcessor wires the extraction pipeline.
func NewProcessor(blobStore blobCache, articles articleStore) *Processor {
	return &Processor{
		cache: blobStore,
		store: articles,
		pdf:   NewPDFExtractor(DefaultPDFOptions()),
		html:  NewHTMLExtractor(HTMLOptions{MinArticleWords: 10, IncludeRawHTML: true}),
		log:   logger.With("extract"),
	}
}

// ProcessEdition extracts every cached blob for an edition date. Per-file
// failures are recorded and never abort the edition.
func (p *Processor) ProcessEdition(ctx context.Context, editionDate time.Time, force bool) (*EditionResult, error) {
	start := time.Now()
	prefix := editionDate.Format("2006-01-02") + "/"

	result := &EditionResult{EditionDate: editionDate.Format("2006-01-02")}

	keys, err := p.cache.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("extract: cache listing failed: %w", err)
	}
	result.TotalFiles = len(keys)
	if len(keys) == 0 {
		p.log.Warn().Str("date", result.EditionDate).Msg("no cached files for edition")
		return result, nil
	}

	for _, key := range keys {
		fr := p.processFile(ctx, editionDate, key, force)
		result.Files = append(result.Files, fr)
		switch fr.Status {
		case "processed":
			result.ProcessedFiles++
			result.TotalArticles += fr.ArticlesFound
			result.NewArticles += fr.ArticlesNew
			result.DuplicateCount += fr.ArticlesDup
		case "skipped":
			result.SkippedFiles++
		default:
			result.FailedFiles++
		}
	}

	result.ProcessingTimeMs = int(time.Since(start).Milliseconds())
	p.log.Info().Int("new", result.NewArticles).Int("duplicates", result.DuplicateCount).
		Int("processed", result.ProcessedFiles).Int("failed", result.FailedFiles).
		Msg("edition extraction complete")
	return result, nil
}

// processFile extracts one cached blob.
func (p *Processor) processFile(ctx context.Context, editionDate time.Time, key string, force bool) FileResult {
	start := time.Now()
	fr := FileResult{ObjectName: key, FileType: "unknown", Status: "failed"}

	if !force {
		done, err := p.store.WasProcessed(ctx, editionDate, fileTypeFromKey(key), key)
		if err == nil && done {
			fr.Status = "skipped"
			fr.ErrorMessage = "already processed"
			return fr
		}
	}

	obj, err := p.cache.Get(ctx, key)
	if err != nil {
		fr.ErrorMessage = "failed to download content: " + err.Error()
		p.log.Error().Err(err).Str("key", key).Msg("cache read failed")
		return fr
	}

	fileType := DetectFileType(key, obj.Body)
	fr.FileType = fileType

	var articles []core.Article
	switch fileType {
	case "pdf":
		candidates, err := p.pdf.ExtractBytes(obj.Body, key)
		if err != nil {
			fr.ErrorMessage = err.Error()
			p.log.Error().Err(err).Str("key", key).Msg("pdf extraction failed")
			return fr
		}
		for _, c := range candidates {
			articles = append(articles, c.ToArticle(key, NormalizeSection))
		}
	case "html":
		candidates, err := p.html.ExtractHTML(string(obj.Body), key)
		if err != nil {
			fr.ErrorMessage = err.Error()
			p.log.Error().Err(err).Str("key", key).Msg("html extraction failed")
			return fr
		}
		for _, c := range candidates {
			articles = append(articles, c.ToArticle(key, NormalizeSection))
		}
	default:
		fr.ErrorMessage = "unsupported file type: " + fileType
		return fr
	}

	fr.ArticlesFound = len(articles)

	if len(articles) > 0 {
		p.applyBlobMetadata(articles, obj.Metadata)
		p.attachEvents(articles)

		res, err := p.store.StoreArticles(ctx, articles, key, fileType)
		if err != nil {
			fr.ErrorMessage = err.Error()
			p.log.Error().Err(err).Str("key", key).Msg("article storage failed")
			return fr
		}
		fr.ArticlesNew = res.New
		fr.ArticlesDup = res.Duplicates
	} else {
		fr.ErrorMessage = "no articles extracted"
	}

	fr.Status = "processed"
	fr.ProcessingTimeMs = int(time.Since(start).Milliseconds())
	return fr
}

// applyBlobMetadata stamps the blob's publication onto the articles and
// backfills empty sections with it.
func (p *Processor) applyBlobMetadata(articles []core.Article, metadata map[string]string) {
	publication := metadata["publication"]
	if publication == "" {
		publication = metadata["x-amz-meta-publication"]
	}
	if publication == "" {
		return
	}
	for i := range articles {
		if articles[i].Metadata == nil {
			articles[i].Metadata = map[string]any{}
		}
		articles[i].Metadata["publication"] = publication
		if articles[i].Section == "" || articles[i].Section == "General" {
			articles[i].Section = NormalizeSection(publication)
		}
	}
}

// attachEvents runs the event parser over each article, storing results on
// the record and deriving a location from the first located event.
func (p *Processor) attachEvents(articles []core.Article) {
	now := time.Now().UTC()
	for i := range articles {
		events := ExtractEvents(articles[i].Content, now)
		if len(events) == 0 {
			continue
		}
		articles[i].EventDates = events
		if articles[i].Metadata == nil {
			articles[i].Metadata = map[string]any{}
		}
		if _, ok := articles[i].Metadata["events"]; !ok {
			articles[i].Metadata["events"] = events
		}
		if articles[i].LocationName == "" {
			for _, ev := range events {
				if ev.LocationName != "" {
					articles[i].LocationName = ev.LocationName
					break
				}
			}
		}
	}
}

// DetectFileType sniffs pdf/html from the object key extension first,
// then magic bytes; web content defaults to html.
func DetectFileType(key string, content []byte) string {
	lower := strings.ToLower(key)
	if strings.HasSuffix(lower, ".pdf") {
		return "pdf"
	}
	if strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm") {
		return "html"
	}
	if bytes.HasPrefix(content, []byte("%PDF")) {
		return "pdf"
	}
	head := bytes.ToLower(content[:min(len(content), 1000)])
	if bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html")) {
		return "html"
	}
	return "html"
}

// fileTypeFromKey guesses the source type recorded in processing history.
func fileTypeFromKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".pdf") {
		return "pdf"
	}
	return "html"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
