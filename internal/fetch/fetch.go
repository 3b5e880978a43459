// Package fetch defines the PageFetcher capability: authenticated page
// retrieval decoupled from discovery, so browser automation stays a
// pluggable collaborator and discovery is pure HTML parsing.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"
)

// PageResult is the outcome of fetching one URL.
type PageResult struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// PageFetcher retrieves a page through an authenticated session.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*PageResult, error)
}

// browserHeaders mimic a desktop browser; some e-edition hosts reject
// default Go user agents outright.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// HTTPFetcher is the plain-HTTP PageFetcher. Cookies come from the session
// storage-state file written by the login collaborator.
type HTTPFetcher struct {
	client *http.Client
}

// storageState is the subset of the storage-state file the fetcher needs.
type storageState struct {
	Cookies []struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Domain string `json:"domain"`
		Path   string `json:"path"`
	} `json:"cookies"`
}

// NewHTTPFetcher builds a fetcher with a 30 s per-request timeout. proxyURL
// may be empty for a direct connection; storagePath may be empty for an
// unauthenticated fetcher.
func NewHTTPFetcher(storagePath, proxyURL string) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: cookie jar init failed: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
	}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Jar:       jar,
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}

	if storagePath != "" {
		if err := f.loadStorageState(storagePath); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// loadStorageState imports cookies from a storage-state JSON file. A
// missing file is fine: the fetcher is simply unauthenticated.
func (f *HTTPFetcher) loadStorageState(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fetch: failed to read storage state: %w", err)
	}

	var state storageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("fetch: malformed storage state: %w", err)
	}

	byHost := map[string][]*http.Cookie{}
	for _, c := range state.Cookies {
		host := c.Domain
		if host == "" {
			continue
		}
		if host[0] == '.' {
			host = host[1:]
		}
		byHost[host] = append(byHost[host], &http.Cookie{
			Name:  c.Name,
			Value: c.Value,
			Path:  c.Path,
		})
	}
	for host, cookies := range byHost {
		u := &url.URL{Scheme: "https", Host: host}
		f.client.Jar.SetCookies(u, cookies)
	}
	return nil
}

// Fetch retrieves one page. Non-2xx responses are returned, not errors;
// callers decide what a 429 or 503 means for them.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*PageResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: bad request for %s: %w", pageURL, err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed for %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: body read failed for %s: %w", pageURL, err)
	}

	return &PageResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
