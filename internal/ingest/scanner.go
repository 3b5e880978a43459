package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// ScannerIncident is one incident line from a police/fire scanner feed.
type ScannerIncident struct {
	Timestamp   time.Time
	IncidentID  string
	Category    string
	Description string
	Location    string
}

// ScannerIngester maps incident lines from an external scanner feed into
// article records.
type ScannerIngester struct {
	sink articleSink
	log  zerolog.Logger
}

// NewScannerIngester builds an ingester.
func NewScannerIngester(sink articleSink) *ScannerIngester {
	return &ScannerIngester{sink: sink, log: logger.With("scanner")}
}

// Run stores a batch of incidents fetched by the caller's feed adapter.
func (s *ScannerIngester) Run(ctx context.Context, feedName string, incidents []ScannerIncident) (int, error) {
	if len(incidents) == 0 {
		return 0, nil
	}

	articles := make([]core.Article, 0, len(incidents))
	for _, inc := range incidents {
		articles = append(articles, IncidentToArticle(inc))
	}

	res, err := s.sink.StoreArticles(ctx, articles, "scanner:"+feedName, string(core.SourceScanner))
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("new", res.New).Int("duplicates", res.Duplicates).Str("feed", feedName).Msg("stored scanner incidents")
	return res.New, nil
}

// IncidentToArticle renders one incident into the canonical article shape.
func IncidentToArticle(inc ScannerIncident) core.Article {
	title := inc.Category
	if title == "" {
		title = "Scanner Incident"
	}
	if inc.Location != "" {
		title = fmt.Sprintf("%s near %s", title, inc.Location)
	}

	var lines []string
	if !inc.Timestamp.IsZero() {
		lines = append(lines, "Reported: "+inc.Timestamp.UTC().Format(time.RFC3339))
	}
	if inc.Location != "" {
		lines = append(lines, "Location: "+inc.Location)
	}
	if inc.Description != "" {
		lines = append(lines, "", inc.Description)
	}
	body := strings.TrimSpace(strings.Join(lines, "\n"))

	sum := md5.Sum([]byte(title + body + inc.IncidentID))
	published := inc.Timestamp.UTC()

	a := core.Article{
		Title:         title,
		Content:       body,
		ContentHash:   hex.EncodeToString(sum[:]),
		SourceType:    core.SourceScanner,
		Section:       "Public Safety",
		WordCount:     len(strings.Fields(body)),
		DateExtracted: time.Now().UTC(),
		Status:        core.StatusExtracted,
		LocationName:  inc.Location,
		Metadata: map[string]any{
			"incident_id": inc.IncidentID,
			"category":    inc.Category,
		},
	}
	if !inc.Timestamp.IsZero() {
		a.DatePublished = &published
	}
	return a
}
