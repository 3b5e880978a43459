package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"newsroom/internal/core"
)

// AggregateDay writes one daily_metrics upsert per (metric_date, kind, key)
// for the given day, spanning section, publication, tag, topic (with score
// sums), and entity kinds, computed from that day's extracted articles.
func (s *Store) AggregateDay(ctx context.Context, day time.Time) error {
	sql := `
    WITH a AS (
        SELECT * FROM articles WHERE DATE(date_extracted) = $1::date
    ),
    by_section AS (
        SELECT $1::date AS day, 'section' AS kind, COALESCE(NULLIF(section,''),'General') AS key,
               COUNT(*)::int AS cnt, NULL::real AS sum_score
        FROM a GROUP BY key
    ),
    by_publication AS (
        SELECT $1::date AS day, 'publication' AS kind, COALESCE(NULLIF(publication,''),'(unknown)') AS key,
               COUNT(*)::int AS cnt, NULL::real AS sum_score
        FROM a GROUP BY key
    ),
    by_tag AS (
        SELECT $1::date AS day, 'tag' AS kind, t.tag AS key, COUNT(*)::int AS cnt, NULL::real AS sum_score
        FROM a JOIN article_tags t ON t.article_id = a.id
        GROUP BY t.tag
    ),
    by_topic AS (
        SELECT $1::date AS day, 'topic' AS kind, tp.label AS key, COUNT(*)::int AS cnt, SUM(at.score)::real AS sum_score
        FROM a JOIN article_topics at ON at.article_id = a.id
               JOIN topics tp ON tp.id = at.topic_id
        GROUP BY tp.label
    ),
    by_entity AS (
        SELECT $1::date AS day, 'entity' AS kind, e.name AS key, COUNT(*)::int AS cnt, NULL::real AS sum_score
        FROM a JOIN article_entities ae ON ae.article_id = a.id
               JOIN entities e ON e.id = ae.entity_id
        GROUP BY e.name
    ),
    unioned AS (
        SELECT * FROM by_section
        UNION ALL SELECT * FROM by_publication
        UNION ALL SELECT * FROM by_tag
        UNION ALL SELECT * FROM by_topic
        UNION ALL SELECT * FROM by_entity
    )
    INSERT INTO daily_metrics(metric_date, kind, key, count, sum_score)
    SELECT day, kind, key, cnt, sum_score FROM unioned
    ON CONFLICT (metric_date, kind, key)
    DO UPDATE SET count = EXCLUDED.count, sum_score = EXCLUDED.sum_score, created_at = NOW()`

	if _, err := s.pool.Exec(ctx, sql, day); err != nil {
		return fmt.Errorf("store: daily aggregation failed: %w", err)
	}
	return nil
}

// MetricWindow is one key's current-day count plus its trailing counts.
type MetricWindow struct {
	Kind    core.MetricKind
	Key     string
	Current float64
	History []float64
}

// MetricWindows loads, for every (kind, key) present on the given day, the
// day's count and the counts over the trailing window (today-W .. today-1).
// Keys with no history still appear with an empty History slice.
func (s *Store) MetricWindows(ctx context.Context, day time.Time, window int) ([]MetricWindow, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT kind, key, count::real FROM daily_metrics WHERE metric_date = $1::date`, day)
	if err != nil {
		return nil, fmt.Errorf("store: current metrics query failed: %w", err)
	}
	var windows []MetricWindow
	index := map[string]int{}
	for rows.Next() {
		var w MetricWindow
		var kind string
		if err := rows.Scan(&kind, &w.Key, &w.Current); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: current metrics scan failed: %w", err)
		}
		w.Kind = core.MetricKind(kind)
		index[kind+"\x00"+w.Key] = len(windows)
		windows = append(windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hist, err := s.pool.Query(ctx, `
        SELECT kind, key, count::real FROM daily_metrics
        WHERE metric_date BETWEEN $1::date - make_interval(days => $2) AND $1::date - INTERVAL '1 day'`,
		day, window)
	if err != nil {
		return nil, fmt.Errorf("store: history metrics query failed: %w", err)
	}
	defer hist.Close()
	for hist.Next() {
		var kind, key string
		var count float64
		if err := hist.Scan(&kind, &key, &count); err != nil {
			return nil, fmt.Errorf("store: history metrics scan failed: %w", err)
		}
		if i, ok := index[kind+"\x00"+key]; ok {
			windows[i].History = append(windows[i].History, count)
		}
	}
	return windows, hist.Err()
}

// UpsertTrendingItem writes one trending row for (metric_date, kind, key).
func (s *Store) UpsertTrendingItem(ctx context.Context, item core.TrendingItem) error {
	details, _ := json.Marshal(item.Details)
	_, err := s.pool.Exec(ctx, `
        INSERT INTO trending_items (metric_date, kind, key, score, zscore, delta, win_size, details)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (metric_date, kind, key) DO UPDATE SET
            score = EXCLUDED.score,
            zscore = EXCLUDED.zscore,
            delta = EXCLUDED.delta,
            win_size = EXCLUDED.win_size,
            details = EXCLUDED.details,
            created_at = NOW()`,
		item.MetricDate, string(item.Kind), item.Key, item.Score, item.ZScore,
		item.Delta, item.WinSize, details)
	if err != nil {
		return fmt.Errorf("store: trending upsert failed: %w", err)
	}
	return nil
}

// KeyMean pairs a metric key with its trailing 7-day mean.
type KeyMean struct {
	Key   string
	Mean7 float64
}

// TopKeysBy7DayMean returns the top-N keys of a kind ranked by their
// trailing 7-day mean count.
func (s *Store) TopKeysBy7DayMean(ctx context.Context, kind core.MetricKind, day time.Time, n int) ([]KeyMean, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT key, SUM(CASE WHEN metric_date > $2::date - INTERVAL '7 days' THEN count ELSE 0 END) / 7.0 AS mean7
        FROM daily_metrics
        WHERE kind = $1 AND metric_date BETWEEN $2::date - INTERVAL '28 days' AND $2::date
        GROUP BY key
        ORDER BY mean7 DESC
        LIMIT $3`, string(kind), day, n)
	if err != nil {
		return nil, fmt.Errorf("store: top keys query failed: %w", err)
	}
	defer rows.Close()

	var out []KeyMean
	for rows.Next() {
		var km KeyMean
		if err := rows.Scan(&km.Key, &km.Mean7); err != nil {
			return nil, fmt.Errorf("store: top keys scan failed: %w", err)
		}
		out = append(out, km)
	}
	return out, rows.Err()
}

// UpsertForecast stores a forecast series for (date, kind, key, horizon).
func (s *Store) UpsertForecast(ctx context.Context, day time.Time, kind core.MetricKind, key string, horizon int, series []core.ForecastPoint) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("store: forecast marshal failed: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO trend_forecasts (date_generated, kind, key, horizon_days, forecast)
        VALUES ($1,$2,$3,$4,$5::jsonb)
        ON CONFLICT (date_generated, kind, key, horizon_days)
        DO UPDATE SET forecast = EXCLUDED.forecast, created_at = NOW()`,
		day, string(kind), key, horizon, payload)
	if err != nil {
		return fmt.Errorf("store: forecast upsert failed: %w", err)
	}
	return nil
}

// IndexableArticle is the projection the vector indexer consumes.
type IndexableArticle struct {
	ID            int64
	Title         string
	Section       string
	Content       string
	Summary       string
	DatePublished *time.Time
}

// RecentSummarized returns summarized articles whose date_updated falls in
// the trailing window, newest first, joined to their brief summaries.
func (s *Store) RecentSummarized(ctx context.Context, hours int) ([]IndexableArticle, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.pool.Query(ctx, `
        SELECT a.id, a.title, COALESCE(NULLIF(a.section,''),'General'), a.content,
               COALESCE(s.summary_text, ''), a.date_published
        FROM articles a
        LEFT JOIN LATERAL (
            SELECT summary_text
            FROM summaries s
            WHERE s.article_id = a.id AND s.summary_type = 'brief'
            ORDER BY s.date_created DESC
            LIMIT 1
        ) s ON TRUE
        WHERE a.processing_status = 'summarized' AND a.date_updated >= $1
        ORDER BY a.date_updated DESC
        LIMIT 1000`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: recent summarized query failed: %w", err)
	}
	defer rows.Close()

	var out []IndexableArticle
	for rows.Next() {
		var ia IndexableArticle
		if err := rows.Scan(&ia.ID, &ia.Title, &ia.Section, &ia.Content, &ia.Summary, &ia.DatePublished); err != nil {
			return nil, fmt.Errorf("store: recent summarized scan failed: %w", err)
		}
		out = append(out, ia)
	}
	return out, rows.Err()
}

// FeedDate is a day with extracted/summarized article counts.
type FeedDate struct {
	Date       string
	Total      int64
	Summarized int64
}

// FeedDates returns the most recent days that have articles, with counts.
func (s *Store) FeedDates(ctx context.Context, limit int) ([]FeedDate, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DATE(a.date_extracted) AS day,
               COUNT(*) AS total,
               SUM(CASE WHEN a.processing_status = 'summarized' THEN 1 ELSE 0 END) AS summarized
        FROM articles a
        GROUP BY day
        ORDER BY day DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: feed dates query failed: %w", err)
	}
	defer rows.Close()

	var out []FeedDate
	for rows.Next() {
		var day time.Time
		var fd FeedDate
		if err := rows.Scan(&day, &fd.Total, &fd.Summarized); err != nil {
			return nil, fmt.Errorf("store: feed dates scan failed: %w", err)
		}
		fd.Date = day.Format("2006-01-02")
		out = append(out, fd)
	}
	return out, rows.Err()
}

// FeedArticle is the per-date feed projection served by the HTTP surface.
type FeedArticle struct {
	ID            int64
	Title         string
	Section       string
	Summary       string
	DatePublished *time.Time
	WordCount     int
	PageNumber    *int
	SourcePath    string
	LocationName  string
	Events        []core.Event
}

// FeedArticles returns a date's articles with their brief summaries,
// optionally filtered by section and a title/content search term.
func (s *Store) FeedArticles(ctx context.Context, day time.Time, limit int, section, search string) ([]FeedArticle, error) {
	sql := `
        SELECT a.id, a.title, COALESCE(NULLIF(a.section,''),'General'),
               COALESCE(s.summary_text, ''), a.date_published, a.word_count,
               a.page_number,
               COALESCE(a.source_url, a.url, a.source_file, ''),
               COALESCE(a.location_name, ''), a.event_dates
        FROM articles a
        LEFT JOIN LATERAL (
            SELECT summary_text
            FROM summaries s
            WHERE s.article_id = a.id AND s.summary_type = 'brief'
            ORDER BY s.date_created DESC
            LIMIT 1
        ) s ON TRUE
        WHERE DATE(a.date_extracted) = $1::date
          AND ($2 = '' OR a.section = $2)
          AND ($3 = '' OR a.title ILIKE '%' || $3 || '%' OR a.content ILIKE '%' || $3 || '%')
        ORDER BY COALESCE(a.date_published, a.date_extracted) DESC, a.id DESC
        LIMIT $4`

	rows, err := s.pool.Query(ctx, sql, day, section, search, limit)
	if err != nil {
		return nil, fmt.Errorf("store: feed articles query failed: %w", err)
	}
	defer rows.Close()

	var out []FeedArticle
	for rows.Next() {
		var fa FeedArticle
		var eventsRaw []byte
		if err := rows.Scan(&fa.ID, &fa.Title, &fa.Section, &fa.Summary, &fa.DatePublished,
			&fa.WordCount, &fa.PageNumber, &fa.SourcePath, &fa.LocationName, &eventsRaw); err != nil {
			return nil, fmt.Errorf("store: feed articles scan failed: %w", err)
		}
		fa.Events = unmarshalEvents(eventsRaw)
		out = append(out, fa)
	}
	return out, rows.Err()
}

// StoredEvent is an article event joined to its parent title.
type StoredEvent struct {
	ID           int64
	ArticleID    int64
	ArticleTitle string
	Title        string
	Description  string
	StartTime    *time.Time
	EndTime      *time.Time
	LocationName string
}

// EventsSince returns events starting within the trailing number of days
// (or with no start time), soonest first.
func (s *Store) EventsSince(ctx context.Context, days int) ([]StoredEvent, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.pool.Query(ctx, `
        SELECT e.id, e.article_id, a.title, e.title, COALESCE(e.description,''),
               e.start_time, e.end_time, COALESCE(e.location_name,'')
        FROM article_events e
        JOIN articles a ON a.id = e.article_id
        WHERE e.start_time >= $1 OR e.start_time IS NULL
        ORDER BY e.start_time NULLS LAST, e.id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: events query failed: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &ev.ArticleTitle, &ev.Title,
			&ev.Description, &ev.StartTime, &ev.EndTime, &ev.LocationName); err != nil {
			return nil, fmt.Errorf("store: events scan failed: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
