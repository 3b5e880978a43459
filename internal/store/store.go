// Package store implements the PostgreSQL article store: canonical article
// rows with hash-based dedup and metadata merge, summaries, events,
// taxonomy, processing history, and the analytics tables.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// Store wraps a pgx connection pool. Connections are acquired only around
// statements; CPU-heavy callers must not hold one across computation.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New connects to the database with the pipeline's pool shape: min 1,
// max 10 connections, 60 s statement timeout.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid DATABASE_URL: %w", err)
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = "60000"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}

	return &Store{pool: pool, log: logger.With("store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates or verifies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migration failed: %w", err)
	}
	s.log.Info().Msg("schema verified")
	return nil
}

// StoreResult aggregates an insert-or-merge batch.
type StoreResult struct {
	New        int
	Duplicates int
}

// StoreArticles inserts articles with duplicate detection. A content-hash
// hit merges the new metadata into the existing row instead of inserting.
// Processing history for (today, sourceType, sourceID) is upserted at the
// end of the transaction.
func (s *Store) StoreArticles(ctx context.Context, articles []core.Article, sourceID string, sourceType string) (StoreResult, error) {
	start := time.Now()
	var res StoreResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("store: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range articles {
		a := &articles[i]
		if a.ContentHash == "" {
			a.ContentHash = core.ContentHashOf(a.Title, a.Content)
		}

		var existingID int64
		err := tx.QueryRow(ctx, `SELECT id FROM articles WHERE content_hash = $1`, a.ContentHash).Scan(&existingID)
		switch {
		case err == pgx.ErrNoRows:
			id, err := s.insertArticle(ctx, tx, a)
			if err != nil {
				return res, err
			}
			if len(a.EventDates) > 0 {
				if err := s.replaceEvents(ctx, tx, id, a.EventDates); err != nil {
					return res, err
				}
			}
			res.New++
			s.log.Debug().Int64("id", id).Str("title", truncate(a.Title, 50)).Msg("stored new article")
		case err != nil:
			return res, fmt.Errorf("store: duplicate lookup failed: %w", err)
		default:
			if err := s.mergeArticle(ctx, tx, existingID, a); err != nil {
				return res, err
			}
			res.Duplicates++
			s.log.Debug().Int64("id", existingID).Str("title", truncate(a.Title, 50)).Msg("merged duplicate article")
		}
	}

	elapsed := int(time.Since(start).Milliseconds())
	if err := s.recordHistory(ctx, tx, core.ProcessingRecord{
		DateProcessed:    time.Now().UTC(),
		SourceType:       sourceType,
		SourceIdentifier: sourceID,
		ArticlesFound:    len(articles),
		ArticlesNew:      res.New,
		ArticlesDup:      res.Duplicates,
		ProcessingTimeMs: elapsed,
		Status:           "success",
	}); err != nil {
		return res, err
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("store: commit failed: %w", err)
	}

	s.log.Info().Int("new", res.New).Int("duplicates", res.Duplicates).Str("source", sourceID).Msg("storage complete")
	return res, nil
}

func (s *Store) insertArticle(ctx context.Context, tx pgx.Tx, a *core.Article) (int64, error) {
	tagsJSON := marshalOrNil(a.Tags)
	metaJSON := marshalOrNil(a.Metadata)
	eventsJSON := marshalOrNil(a.EventDates)

	status := a.Status
	if status == "" {
		status = core.StatusExtracted
	}
	extracted := a.DateExtracted
	if extracted.IsZero() {
		extracted = time.Now().UTC()
	}

	var id int64
	err := tx.QueryRow(ctx, `
        INSERT INTO articles (
            title, content, content_hash, url, source_type, source_url, source_file,
            page_number, column_number, section, author, tags, word_count,
            date_published, date_extracted, processing_status,
            raw_html, metadata, publication, location_name, location_lat, location_lon, event_dates
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,
            $14,$15,$16,$17,$18,$19,$20,$21,$22,$23
        ) RETURNING id`,
		a.Title, a.Content, a.ContentHash, nilIfEmpty(a.URL), string(a.SourceType),
		nilIfEmpty(a.SourceURL), nilIfEmpty(a.SourceFile),
		a.PageNumber, a.ColumnNumber, nilIfEmpty(a.Section), nilIfEmpty(a.Author),
		tagsJSON, a.WordCount, a.DatePublished, extracted, string(status),
		nilIfEmpty(a.RawHTML), metaJSON, nilIfEmpty(publicationOf(a)),
		nilIfEmpty(a.LocationName), a.LocationLat, a.LocationLon, eventsJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert failed: %w", err)
	}
	a.ID = id
	return id, nil
}

// mergeArticle folds new extraction metadata into an existing row: tags
// union, metadata shallow-merge, scalars take non-empty incoming values, events union by
// structural equality.
func (s *Store) mergeArticle(ctx context.Context, tx pgx.Tx, id int64, incoming *core.Article) error {
	row := tx.QueryRow(ctx, `
        SELECT section, author, tags, word_count, page_number, column_number,
               date_published, metadata, raw_html, publication, location_name,
               location_lat, location_lon, source_file, source_url, event_dates
        FROM articles WHERE id = $1`, id)

	var (
		section, author, rawHTML, publication, locName, srcFile, srcURL *string
		tagsRaw, metaRaw, eventsRaw                                     []byte
		wordCount                                                       *int
		pageNumber, columnNumber                                        *int
		datePublished                                                   *time.Time
		locLat, locLon                                                  *float64
	)
	if err := row.Scan(&section, &author, &tagsRaw, &wordCount, &pageNumber, &columnNumber,
		&datePublished, &metaRaw, &rawHTML, &publication, &locName, &locLat, &locLon,
		&srcFile, &srcURL, &eventsRaw); err != nil {
		return fmt.Errorf("store: merge read failed: %w", err)
	}

	existingTags := unmarshalStrings(tagsRaw)
	mergedTags := core.MergeTags(existingTags, incoming.Tags)

	existingMeta := unmarshalMap(metaRaw)
	mergedMeta := core.MergeMetadata(existingMeta, incoming.Metadata)

	existingEvents := unmarshalEvents(eventsRaw)
	mergedEvents := core.MergeEvents(existingEvents, incoming.EventDates)

	// Non-empty incoming values replace the stored ones and empty ones keep
	// what is stored; source_file/source_url keep the first-seen value.
	newSection := firstNonEmpty(incoming.Section, deref(section))
	newAuthor := firstNonEmpty(incoming.Author, deref(author))
	newWordCount := incoming.WordCount
	if newWordCount == 0 && wordCount != nil {
		newWordCount = *wordCount
	}
	newPage := coalesceInt(incoming.PageNumber, pageNumber)
	newColumn := coalesceInt(incoming.ColumnNumber, columnNumber)
	newPublished := incoming.DatePublished
	if newPublished == nil {
		newPublished = datePublished
	}
	newRawHTML := firstNonEmpty(incoming.RawHTML, deref(rawHTML))
	newPublication := firstNonEmpty(publicationOf(incoming), deref(publication))
	newLocName := firstNonEmpty(incoming.LocationName, deref(locName))
	newLat := coalesceFloat(incoming.LocationLat, locLat)
	newLon := coalesceFloat(incoming.LocationLon, locLon)
	newSrcFile := firstNonEmpty(deref(srcFile), incoming.SourceFile)
	newSrcURL := firstNonEmpty(deref(srcURL), incoming.SourceURL)

	if len(incoming.EventDates) > 0 && len(mergedEvents) > 0 {
		if err := s.replaceEvents(ctx, tx, id, mergedEvents); err != nil {
			return err
		}
	}

	_, err := tx.Exec(ctx, `
        UPDATE articles
        SET section = $1, author = $2, tags = $3, word_count = $4,
            page_number = $5, column_number = $6, date_published = $7,
            metadata = $8, raw_html = $9, publication = $10, location_name = $11,
            location_lat = $12, location_lon = $13, source_file = $14,
            source_url = $15, event_dates = $16
        WHERE id = $17`,
		nilIfEmpty(newSection), nilIfEmpty(newAuthor), marshalOrNil(mergedTags), newWordCount,
		newPage, newColumn, newPublished, marshalOrNil(mergedMeta), nilIfEmpty(newRawHTML),
		nilIfEmpty(newPublication), nilIfEmpty(newLocName), newLat, newLon,
		nilIfEmpty(newSrcFile), nilIfEmpty(newSrcURL), marshalOrNil(mergedEvents), id)
	if err != nil {
		return fmt.Errorf("store: merge update failed: %w", err)
	}
	return nil
}

// replaceEvents regenerates the article's child event rows atomically:
// delete then insert within the caller's transaction.
func (s *Store) replaceEvents(ctx context.Context, tx pgx.Tx, articleID int64, events []core.Event) error {
	if _, err := tx.Exec(ctx, `DELETE FROM article_events WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("store: event delete failed: %w", err)
	}
	for _, ev := range events {
		title := ev.Title
		if title == "" {
			title = "Community Event"
		}
		meta, _ := json.Marshal(ev)
		if _, err := tx.Exec(ctx, `
            INSERT INTO article_events (article_id, title, description, start_time, end_time, location_name, location_meta)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			articleID, title, nilIfEmpty(ev.Context), ev.StartTime, ev.EndTime,
			nilIfEmpty(ev.LocationName), meta); err != nil {
			return fmt.Errorf("store: event insert failed: %w", err)
		}
	}
	return nil
}

func (s *Store) recordHistory(ctx context.Context, tx pgx.Tx, rec core.ProcessingRecord) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO processing_history (
            date_processed, source_type, source_identifier, articles_found,
            articles_new, articles_duplicate, processing_time_ms, status, error_message
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (date_processed, source_type, source_identifier)
        DO UPDATE SET
            articles_found = EXCLUDED.articles_found,
            articles_new = EXCLUDED.articles_new,
            articles_duplicate = EXCLUDED.articles_duplicate,
            processing_time_ms = EXCLUDED.processing_time_ms,
            status = EXCLUDED.status,
            error_message = EXCLUDED.error_message`,
		rec.DateProcessed, rec.SourceType, rec.SourceIdentifier, rec.ArticlesFound,
		rec.ArticlesNew, rec.ArticlesDup, rec.ProcessingTimeMs, rec.Status,
		nilIfEmpty(rec.ErrorMessage))
	if err != nil {
		return fmt.Errorf("store: history upsert failed: %w", err)
	}
	return nil
}

// WasProcessed reports whether a (date, sourceType, identifier) run is
// already recorded as successful.
func (s *Store) WasProcessed(ctx context.Context, day time.Time, sourceType, sourceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM processing_history
            WHERE date_processed = $1 AND source_type = $2 AND source_identifier = $3 AND status = 'success'
        )`, day, sourceType, sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: history lookup failed: %w", err)
	}
	return exists, nil
}

// ArticlesForProcessing returns up to limit articles at the given status,
// oldest extraction first.
func (s *Store) ArticlesForProcessing(ctx context.Context, status core.Status, limit int) ([]core.Article, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, title, content, content_hash, url, source_type, source_url, source_file,
               page_number, column_number, section, author, tags, word_count,
               date_published, date_extracted, date_created, date_updated,
               processing_status, metadata, publication, event_dates
        FROM articles
        WHERE processing_status = $1
        ORDER BY date_extracted ASC
        LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending query failed: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ArticleByID fetches a single article.
func (s *Store) ArticleByID(ctx context.Context, id int64) (*core.Article, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, title, content, content_hash, url, source_type, source_url, source_file,
               page_number, column_number, section, author, tags, word_count,
               date_published, date_extracted, date_created, date_updated,
               processing_status, metadata, publication, event_dates
        FROM articles WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: article lookup failed: %w", err)
	}
	defer rows.Close()
	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, nil
	}
	return &articles[0], nil
}

// UpdateStatus advances (or resets) an article's processing status.
func (s *Store) UpdateStatus(ctx context.Context, articleID int64, status core.Status) error {
	_, err := s.pool.Exec(ctx, `UPDATE articles SET processing_status = $1 WHERE id = $2`,
		string(status), articleID)
	if err != nil {
		return fmt.Errorf("store: status update failed: %w", err)
	}
	return nil
}

// ResetToExtracted is the deliberate reprocess operation: the article will
// be picked up again by the summarizer.
func (s *Store) ResetToExtracted(ctx context.Context, articleID int64) error {
	return s.UpdateStatus(ctx, articleID, core.StatusExtracted)
}

// StoreSummary upserts the brief summary row for an article. The stored
// text folds key points and sentiment in after the prose summary.
func (s *Store) StoreSummary(ctx context.Context, articleID int64, payload core.SummaryPayload, modelUsed string, tokensUsed, generationMs int) (int64, error) {
	full := ComposeSummaryText(payload.Summary, payload.KeyPoints, payload.Sentiment)

	var id int64
	err := s.pool.QueryRow(ctx, `
        INSERT INTO summaries (article_id, summary_text, summary_type, model_used, tokens_used, generation_time_ms)
        VALUES ($1,$2,'brief',$3,$4,$5)
        ON CONFLICT (article_id, summary_type)
        DO UPDATE SET
            summary_text = EXCLUDED.summary_text,
            model_used = EXCLUDED.model_used,
            tokens_used = EXCLUDED.tokens_used,
            generation_time_ms = EXCLUDED.generation_time_ms
        RETURNING id`,
		articleID, full, modelUsed, tokensUsed, generationMs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: summary upsert failed: %w", err)
	}
	return id, nil
}

// ComposeSummaryText renders the stored summary_text: prose, then a
// "Key Points:" block, then a sentiment line.
func ComposeSummaryText(summary string, keyPoints []string, sentiment string) string {
	var b strings.Builder
	b.WriteString(summary)
	if len(keyPoints) > 0 {
		b.WriteString("\n\nKey Points:\n")
		for i, p := range keyPoints {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("• " + p)
		}
	}
	if sentiment != "" {
		b.WriteString("\n\nSentiment: " + sentiment)
	}
	return b.String()
}

// CleanupHistory deletes processing-history rows older than the given
// number of days. The interval is parameterized, never interpolated.
func (s *Store) CleanupHistory(ctx context.Context, days int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM processing_history
        WHERE date_processed < CURRENT_DATE - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("store: history cleanup failed: %w", err)
	}
	s.log.Info().Int64("deleted", tag.RowsAffected()).Msg("cleaned up old processing history")
	return tag.RowsAffected(), nil
}

// DailyStat is a per-(day, source) rollup of processing history.
type DailyStat struct {
	DateProcessed   time.Time
	SourceType      string
	TotalFound      int64
	TotalNew        int64
	TotalDuplicates int64
	AvgProcessingMs float64
}

// ProcessingStats aggregates processing history over the last N days.
func (s *Store) ProcessingStats(ctx context.Context, days int) ([]DailyStat, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT date_processed, source_type,
               SUM(articles_found), SUM(articles_new), SUM(articles_duplicate),
               COALESCE(AVG(processing_time_ms), 0)
        FROM processing_history
        WHERE date_processed >= CURRENT_DATE - make_interval(days => $1)
        GROUP BY date_processed, source_type
        ORDER BY date_processed DESC, source_type`, days)
	if err != nil {
		return nil, fmt.Errorf("store: stats query failed: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var st DailyStat
		if err := rows.Scan(&st.DateProcessed, &st.SourceType, &st.TotalFound, &st.TotalNew,
			&st.TotalDuplicates, &st.AvgProcessingMs); err != nil {
			return nil, fmt.Errorf("store: stats scan failed: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// UpsertOAuthToken stores provider credentials keyed by (provider, account).
func (s *Store) UpsertOAuthToken(ctx context.Context, tok core.OAuthToken) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO oauth_tokens (provider, account, access_token, refresh_token, scope, expires_at, date_updated)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (provider, account)
        DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            scope = EXCLUDED.scope,
            expires_at = EXCLUDED.expires_at,
            date_updated = NOW()`,
		tok.Provider, tok.Account, tok.AccessToken, nilIfEmpty(tok.RefreshToken),
		nilIfEmpty(tok.Scope), tok.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: token upsert failed: %w", err)
	}
	return nil
}

// GetOAuthToken retrieves stored credentials, or nil when absent.
func (s *Store) GetOAuthToken(ctx context.Context, provider, account string) (*core.OAuthToken, error) {
	var tok core.OAuthToken
	var refresh, scope *string
	err := s.pool.QueryRow(ctx, `
        SELECT provider, account, access_token, refresh_token, scope, expires_at
        FROM oauth_tokens WHERE provider = $1 AND account = $2`,
		provider, account).Scan(&tok.Provider, &tok.Account, &tok.AccessToken, &refresh, &scope, &tok.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: token lookup failed: %w", err)
	}
	tok.RefreshToken = deref(refresh)
	tok.Scope = deref(scope)
	return &tok, nil
}

// scanArticles maps query rows onto core.Article values.
func scanArticles(rows pgx.Rows) ([]core.Article, error) {
	var articles []core.Article
	for rows.Next() {
		var (
			a                                     core.Article
			url, srcURL, srcFile, section, author *string
			publication                           *string
			tagsRaw, metaRaw, eventsRaw           []byte
			sourceType, status                    string
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.ContentHash, &url, &sourceType,
			&srcURL, &srcFile, &a.PageNumber, &a.ColumnNumber, &section, &author,
			&tagsRaw, &a.WordCount, &a.DatePublished, &a.DateExtracted, &a.DateCreated,
			&a.DateUpdated, &status, &metaRaw, &publication, &eventsRaw); err != nil {
			return nil, fmt.Errorf("store: article scan failed: %w", err)
		}
		a.URL = deref(url)
		a.SourceType = core.SourceType(sourceType)
		a.SourceURL = deref(srcURL)
		a.SourceFile = deref(srcFile)
		a.Section = deref(section)
		a.Author = deref(author)
		a.Tags = unmarshalStrings(tagsRaw)
		a.Status = core.Status(status)
		a.Metadata = unmarshalMap(metaRaw)
		a.EventDates = unmarshalEvents(eventsRaw)
		if publication != nil {
			if a.Metadata == nil {
				a.Metadata = map[string]any{}
			}
			a.Metadata["publication"] = *publication
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// publicationOf pulls the publication label out of article metadata.
func publicationOf(a *core.Article) string {
	if a.Metadata == nil {
		return ""
	}
	if p, ok := a.Metadata["publication"].(string); ok {
		return p
	}
	return ""
}

func marshalOrNil(v any) []byte {
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return nil
		}
	case map[string]any:
		if len(x) == 0 {
			return nil
		}
	case []core.Event:
		if len(x) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalEvents(raw []byte) []core.Event {
	if len(raw) == 0 {
		return nil
	}
	var out []core.Event
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func coalesceInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func coalesceFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
