package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// FacebookConfig carries Graph API access for pages the operator manages.
// Ingestion is strictly API-based: no scraping, no automated login.
type FacebookConfig struct {
	GraphVersion    string
	UserAccessToken string
	PageIDs         []string
}

// FacebookIngester pulls posts and events from managed Facebook Pages.
type FacebookIngester struct {
	cfg  FacebookConfig
	sink articleSink
	http *http.Client
	log  zerolog.Logger
}

// NewFacebookIngester builds an ingester.
func NewFacebookIngester(cfg FacebookConfig, sink articleSink) *FacebookIngester {
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = "v19.0"
	}
	return &FacebookIngester{
		cfg:  cfg,
		sink: sink,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger.With("facebook"),
	}
}

func (f *FacebookIngester) baseURL() string {
	return "https://graph.facebook.com/" + f.cfg.GraphVersion
}

// graphGet performs one Graph API request and decodes the response.
func (f *FacebookIngester) graphGet(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := f.baseURL() + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("ingest: graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ingest: graph returned status %d: %s", resp.StatusCode, string(body[:min(len(body), 300)]))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PageAccessToken exchanges the user token for a page token.
func (f *FacebookIngester) PageAccessToken(ctx context.Context, pageID string) (string, error) {
	if f.cfg.UserAccessToken == "" {
		return "", fmt.Errorf("ingest: facebook user access token is not set")
	}
	params := url.Values{}
	params.Set("fields", "access_token")
	params.Set("access_token", f.cfg.UserAccessToken)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := f.graphGet(ctx, pageID, params, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("ingest: could not obtain page access token for %s", pageID)
	}
	return out.AccessToken, nil
}

// fbPost is the Graph post subset the ingester maps.
type fbPost struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Story        string `json:"story"`
	PermalinkURL string `json:"permalink_url"`
	CreatedTime  string `json:"created_time"`
}

// fbEvent is the Graph event subset mapped onto article event dates.
type fbEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Place       struct {
		Name string `json:"name"`
	} `json:"place"`
}

type fbPage[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// fetchPaged walks Graph pagination until exhausted or maxPages is hit.
func fetchPaged[T any](ctx context.Context, f *FacebookIngester, path string, params url.Values, maxPages int) ([]T, error) {
	var all []T

	var page fbPage[T]
	if err := f.graphGet(ctx, path, params, &page); err != nil {
		return nil, err
	}
	all = append(all, page.Data...)

	next := page.Paging.Next
	for pages := 1; next != "" && pages < maxPages; pages++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			break
		}
		resp, err := f.http.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			break
		}
		var more fbPage[T]
		err = json.NewDecoder(resp.Body).Decode(&more)
		resp.Body.Close()
		if err != nil {
			break
		}
		all = append(all, more.Data...)
		next = more.Paging.Next
	}
	return all, nil
}

// Run ingests recent posts (and their page events) for every configured
// page. Per-page failures are logged and skipped.
func (f *FacebookIngester) Run(ctx context.Context, since time.Time, limit int) (int, error) {
	if len(f.cfg.PageIDs) == 0 {
		f.log.Info().Msg("no facebook pages configured")
		return 0, nil
	}

	total := 0
	for _, pageID := range f.cfg.PageIDs {
		token, err := f.PageAccessToken(ctx, pageID)
		if err != nil {
			f.log.Warn().Err(err).Str("page", pageID).Msg("page token exchange failed")
			continue
		}

		params := url.Values{}
		params.Set("access_token", token)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("fields", "id,message,permalink_url,created_time,story")
		if !since.IsZero() {
			params.Set("since", strconv.FormatInt(since.Unix(), 10))
		}

		posts, err := fetchPaged[fbPost](ctx, f, pageID+"/posts", params, 10)
		if err != nil {
			f.log.Warn().Err(err).Str("page", pageID).Msg("post fetch failed")
			continue
		}

		eventParams := url.Values{}
		eventParams.Set("access_token", token)
		eventParams.Set("limit", "50")
		eventParams.Set("fields", "id,name,description,start_time,end_time,place")
		events, err := fetchPaged[fbEvent](ctx, f, pageID+"/events", eventParams, 5)
		if err != nil {
			f.log.Debug().Err(err).Str("page", pageID).Msg("event fetch failed")
		}

		var articles []core.Article
		for _, post := range posts {
			if a, ok := PostArticle(pageID, post); ok {
				articles = append(articles, a)
			}
		}
		if len(articles) > 0 && len(events) > 0 {
			// Page events attach to the first (newest) post's record so
			// they surface in the events feed.
			articles[0].EventDates = mapEvents(events)
		}
		if len(articles) == 0 {
			continue
		}

		res, err := f.sink.StoreArticles(ctx, articles, "facebook:"+pageID, string(core.SourceFacebook))
		if err != nil {
			f.log.Warn().Err(err).Str("page", pageID).Msg("page storage failed")
			continue
		}
		total += res.New
	}

	f.log.Info().Int("new", total).Msg("facebook ingestion complete")
	return total, nil
}

// PostArticle maps a page post onto the canonical article shape. A post
// without message text falls back to its story text; posts with neither
// are skipped.
func PostArticle(pageID string, post fbPost) (core.Article, bool) {
	content := strings.TrimSpace(post.Message)
	if content == "" {
		content = strings.TrimSpace(post.Story)
	}
	if content == "" {
		return core.Article{}, false
	}

	title := content
	if i := strings.IndexAny(title, "\n"); i != -1 {
		title = title[:i]
	}
	if len(title) > 200 {
		title = title[:200]
	}

	var published *time.Time
	if post.CreatedTime != "" {
		if t, err := time.Parse("2006-01-02T15:04:05-0700", post.CreatedTime); err == nil {
			utc := t.UTC()
			published = &utc
		} else if t, err := time.Parse(time.RFC3339, post.CreatedTime); err == nil {
			utc := t.UTC()
			published = &utc
		}
	}

	return core.Article{
		Title:         title,
		Content:       content,
		ContentHash:   core.ContentHashOf(title, content),
		URL:           post.PermalinkURL,
		SourceType:    core.SourceFacebook,
		SourceURL:     post.PermalinkURL,
		Section:       "Facebook/" + pageID,
		WordCount:     len(strings.Fields(content)),
		DatePublished: published,
		DateExtracted: time.Now().UTC(),
		Status:        core.StatusExtracted,
		Metadata:      map[string]any{"page_id": pageID, "post_id": post.ID},
	}, true
}

// mapEvents converts Graph events into article event dates.
func mapEvents(events []fbEvent) []core.Event {
	var out []core.Event
	for _, ev := range events {
		start, err := parseGraphTime(ev.StartTime)
		if err != nil {
			continue
		}
		event := core.Event{
			Title:        ev.Name,
			StartTime:    start,
			LocationName: ev.Place.Name,
			Context:      strings.TrimSpace(ev.Description),
		}
		if len(event.Context) > 220 {
			event.Context = event.Context[:220]
		}
		if end, err := parseGraphTime(ev.EndTime); err == nil {
			event.EndTime = &end
		}
		out = append(out, event)
	}
	return out
}

func parseGraphTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}
