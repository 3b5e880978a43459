// Package download fetches every page of an edition concurrently through a
// rotating egress proxy pool, writing bytes into the object cache. Per-page
// failures are recorded in the aggregate result and never fail the edition.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/cache"
	"newsroom/internal/core"
	"newsroom/internal/logger"
)

// ProxyPicker supplies one proxy URL per attempt; empty string means a
// direct connection.
type ProxyPicker func() string

// Options tune the orchestrator.
type Options struct {
	Workers    int           // Concurrent page downloads (default 4)
	MaxRetries int           // Proxied attempts per page before direct fallback (default 3)
	Timeout    time.Duration // Per-attempt timeout (default 30 s)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// blobCache is the slice of the object cache the downloader uses.
type blobCache interface {
	Exists(ctx context.Context, key string) bool
	Get(ctx context.Context, key string) (*cache.Object, error)
	PutPage(ctx context.Context, editionDate time.Time, publication, pageURL string, pageNumber int, format, section, title string, body []byte) (string, error)
}

// Downloader fetches edition pages into the cache.
type Downloader struct {
	cache   blobCache
	proxy   ProxyPicker
	opts    Options
	log     zerolog.Logger
	sleepFn func(time.Duration) // Test seam for backoff waits
}

// New builds a downloader. proxy may be nil for direct-only operation.
func New(blobStore blobCache, proxy ProxyPicker, opts Options) *Downloader {
	if proxy == nil {
		proxy = func() string { return "" }
	}
	return &Downloader{
		cache:   blobStore,
		proxy:   proxy,
		opts:    opts.withDefaults(),
		log:     logger.With("download"),
		sleepFn: time.Sleep,
	}
}

// DownloadEdition downloads all pages of an edition with a bounded worker
// pool. Pages already cached are returned from cache unless force is set.
func (d *Downloader) DownloadEdition(ctx context.Context, edition *core.Edition, force bool) *core.DownloadResult {
	result := &core.DownloadResult{
		EditionDate: edition.Date.Format("2006-01-02"),
		Publication: edition.Publication,
		TotalPages:  edition.TotalPages(),
		StartTime:   time.Now().UTC(),
	}

	d.log.Info().Int("pages", edition.TotalPages()).Str("publication", edition.Publication).
		Str("date", result.EditionDate).Msg("starting edition download")

	var mu sync.Mutex
	sem := make(chan struct{}, d.opts.Workers)
	var wg sync.WaitGroup

	for _, page := range edition.Pages {
		wg.Add(1)
		go func(p core.EditionPage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pr := d.downloadPage(ctx, edition, p, force)

			mu.Lock()
			defer mu.Unlock()
			if pr.Error == "" {
				result.Successful++
				if pr.FromCache {
					result.FromCache++
				}
				result.Pages = append(result.Pages, pr)
			} else {
				result.Failed++
				result.FailedPages = append(result.FailedPages, pr)
			}
		}(page)
	}
	wg.Wait()

	result.EndTime = time.Now().UTC()
	if result.TotalPages > 0 {
		result.SuccessRate = float64(result.Successful) / float64(result.TotalPages)
	}

	d.log.Info().Int("successful", result.Successful).Int("failed", result.Failed).
		Int("cached", result.FromCache).Msg("edition download complete")
	return result
}

// downloadPage fetches one page, consulting the cache first.
func (d *Downloader) downloadPage(ctx context.Context, edition *core.Edition, page core.EditionPage, force bool) core.PageResult {
	pr := core.PageResult{
		PageNumber: page.PageNumber,
		URL:        page.URL,
		Section:    page.Section,
		Format:     page.Format,
	}

	key := cache.ObjectKey(edition.Date, edition.Publication, page.URL, page.PageNumber, page.Format)
	if !force && d.cache.Exists(ctx, key) {
		obj, err := d.cache.Get(ctx, key)
		if err == nil {
			pr.SizeBytes = len(obj.Body)
			pr.FromCache = true
			d.log.Debug().Int("page", page.PageNumber).Str("key", key).Msg("served from cache")
			return pr
		}
		// Cache said it exists but the read failed: fall through to a
		// fresh download.
		d.log.Warn().Err(err).Str("key", key).Msg("cache read failed, refetching")
	}

	body, err := d.fetchWithRetries(ctx, page.URL)
	if err != nil {
		pr.Error = err.Error()
		d.log.Error().Int("page", page.PageNumber).Str("url", page.URL).Err(err).Msg("page download failed")
		return pr
	}

	if _, err := d.cache.PutPage(ctx, edition.Date, edition.Publication, page.URL,
		page.PageNumber, page.Format, page.Section, page.Title, body); err != nil {
		// Bytes were fetched; a cache write failure is logged but does not
		// fail the page.
		d.log.Warn().Err(err).Int("page", page.PageNumber).Msg("downloaded but caching failed")
	}

	pr.SizeBytes = len(body)
	return pr
}

// fetchWithRetries runs up to MaxRetries proxied attempts with a linearly
// growing backoff of (attempt+1)*2 seconds, then one direct attempt before giving
// up.
func (d *Downloader) fetchWithRetries(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		d.log.Debug().Str("url", pageURL).Int("attempt", attempt+1).Int("max", d.opts.MaxRetries).Msg("downloading")

		body, err := d.fetchOnce(ctx, pageURL, d.proxy())
		if err == nil {
			return body, nil
		}
		lastErr = err
		d.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", pageURL).Msg("download attempt failed")

		if attempt < d.opts.MaxRetries-1 {
			wait := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			d.sleepFn(wait)
		}
	}

	// Final direct (no-proxy) attempt.
	d.log.Info().Str("url", pageURL).Msg("all proxy attempts failed, trying direct download once")
	body, err := d.fetchOnce(ctx, pageURL, "")
	if err == nil {
		return body, nil
	}
	return nil, fmt.Errorf("download: %d proxied attempts and direct fallback failed: %w (last proxied error: %v)", d.opts.MaxRetries, err, lastErr)
}

// fetchOnce performs a single HTTP GET, optionally through a proxy.
// 429 and 5xx responses are errors so the caller retries them.
func (d *Downloader) fetchOnce(ctx context.Context, pageURL, proxyURL string) ([]byte, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("download: invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	client := &http.Client{Timeout: d.opts.Timeout, Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: bad request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("download: status %d from %s", resp.StatusCode, pageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: body read failed: %w", err)
	}
	return body, nil
}
