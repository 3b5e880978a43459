package ingest

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/logger"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIBase  = "https://oauth.reddit.com"
	redditWebBase  = "https://www.reddit.com"

	// redditPause keeps requests under Reddit's 1 req / 2 s guidance.
	redditPause = 2 * time.Second
)

// defaultSubreddits is the seed list for the coverage region.
var defaultSubreddits = []string{
	"AbingdonVA", "BristolTN", "BristolVA", "Roanoke",
	"Blacksburg", "Christiansburg", "Virginiatech", "Virginia", "wythecounty",
}

// RedditConfig carries OAuth app credentials. Username/Password switch the
// grant to the script flow; otherwise client credentials are used.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Username     string
	Password     string
	Subreddits   []string
}

// tokenStore persists provider credentials between runs.
type tokenStore interface {
	UpsertOAuthToken(ctx context.Context, tok core.OAuthToken) error
}

// RedditIngester pulls new posts from local subreddits into the article
// store.
type RedditIngester struct {
	cfg     RedditConfig
	sink    articleSink
	tokens  tokenStore // optional
	http    *http.Client
	log     zerolog.Logger
	sleepFn func(time.Duration)
}

// NewRedditIngester builds an ingester.
func NewRedditIngester(cfg RedditConfig, sink articleSink) *RedditIngester {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsroom/0.1 (by u/localnewsbot)"
	}
	if len(cfg.Subreddits) == 0 {
		cfg.Subreddits = defaultSubreddits
	}
	return &RedditIngester{
		cfg:     cfg,
		sink:    sink,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.With("reddit"),
		sleepFn: time.Sleep,
	}
}

// redditPost is the subset of a listing child the ingester maps.
type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// AccessToken performs the OAuth handshake. An empty token (with nil
// error) means unauthenticated fallback via the public .json endpoints.
func (r *RedditIngester) AccessToken(ctx context.Context) (string, error) {
	if r.cfg.ClientID == "" {
		return "", nil
	}

	form := url.Values{}
	if r.cfg.Username != "" && r.cfg.Password != "" {
		form.Set("grant_type", "password")
		form.Set("username", r.cfg.Username)
		form.Set("password", r.cfg.Password)
		form.Set("scope", "read")
	} else {
		form.Set("grant_type", "client_credentials")
		form.Set("scope", "read")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, redditTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("ingest: reddit token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	basic := base64.StdEncoding.EncodeToString([]byte(r.cfg.ClientID + ":" + r.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ingest: reddit token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		r.log.Warn().Int("status", resp.StatusCode).Str("body", string(body[:min(len(body), 120)])).Msg("token request failed")
		return "", nil
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("ingest: reddit token decode failed: %w", err)
	}
	return payload.AccessToken, nil
}

// fetchNew lists a subreddit's newest posts.
func (r *RedditIngester) fetchNew(ctx context.Context, token, sub string, limit int) ([]redditPost, error) {
	var endpoint string
	if token != "" {
		endpoint = fmt.Sprintf("%s/r/%s/new?limit=%d", redditAPIBase, sub, limit)
	} else {
		endpoint = fmt.Sprintf("%s/r/%s/new.json?limit=%d", redditWebBase, sub, limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: reddit fetch failed for %s: %w", sub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ingest: reddit returned status %d for %s: %s", resp.StatusCode, sub, string(body[:min(len(body), 200)]))
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("ingest: reddit listing decode failed: %w", err)
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

// WithTokenStore persists the OAuth token under (reddit, client id) after
// each successful handshake.
func (r *RedditIngester) WithTokenStore(store tokenStore) *RedditIngester {
	r.tokens = store
	return r
}

// Run ingests recent posts across the configured subreddits, spacing
// requests to respect the rate guidance. Per-subreddit failures are
// logged and skipped.
func (r *RedditIngester) Run(ctx context.Context, sinceHours, limit int) (int, error) {
	token, err := r.AccessToken(ctx)
	if err != nil {
		return 0, err
	}
	if token != "" && r.tokens != nil {
		expires := time.Now().UTC().Add(time.Hour)
		if err := r.tokens.UpsertOAuthToken(ctx, core.OAuthToken{
			Provider:    "reddit",
			Account:     r.cfg.ClientID,
			AccessToken: token,
			Scope:       "read",
			ExpiresAt:   &expires,
		}); err != nil {
			r.log.Warn().Err(err).Msg("token persistence failed")
		}
	}

	cutoff := time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour)
	total := 0

	for i, sub := range r.cfg.Subreddits {
		if i > 0 {
			r.sleepFn(redditPause)
		}

		posts, err := r.fetchNew(ctx, token, sub, limit)
		if err != nil {
			r.log.Warn().Err(err).Str("subreddit", sub).Msg("subreddit fetch failed")
			continue
		}

		var articles []core.Article
		for _, p := range posts {
			created := time.Unix(int64(p.CreatedUTC), 0).UTC()
			if created.Before(cutoff) {
				continue
			}
			articles = append(articles, PostToArticle(p, sub, created))
		}
		if len(articles) == 0 {
			continue
		}

		res, err := r.sink.StoreArticles(ctx, articles, "reddit:"+sub, string(core.SourceReddit))
		if err != nil {
			r.log.Warn().Err(err).Str("subreddit", sub).Msg("subreddit storage failed")
			continue
		}
		total += res.New
	}

	r.log.Info().Int("new", total).Msg("reddit ingestion complete")
	return total, nil
}

// PostToArticle maps a Reddit post onto the canonical article shape. Link
// posts without selftext carry the outbound URL inline.
func PostToArticle(p redditPost, sub string, created time.Time) core.Article {
	postURL := p.URL
	if p.Permalink != "" {
		postURL = redditWebBase + p.Permalink
	}

	content := strings.TrimSpace(p.Selftext)
	if content == "" && p.URL != "" {
		content = fmt.Sprintf("Link: %s\n\n(See discussion in thread)", p.URL)
	}

	sum := md5.Sum([]byte(p.Title + content + postURL))
	published := created

	return core.Article{
		Title:         p.Title,
		Content:       content,
		ContentHash:   hex.EncodeToString(sum[:]),
		URL:           postURL,
		SourceType:    core.SourceReddit,
		SourceURL:     postURL,
		Section:       "Reddit/" + sub,
		Author:        p.Author,
		WordCount:     len(strings.Fields(content)),
		DatePublished: &published,
		DateExtracted: time.Now().UTC(),
		Status:        core.StatusExtracted,
		Metadata: map[string]any{
			"subreddit":    sub,
			"score":        p.Score,
			"num_comments": p.NumComments,
		},
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
