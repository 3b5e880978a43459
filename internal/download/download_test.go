package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"newsroom/internal/cache"
	"newsroom/internal/core"
)

// memCache is an in-memory blobCache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) Exists(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memCache) Get(ctx context.Context, key string) (*cache.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if body, ok := m.data[key]; ok {
		return &cache.Object{Key: key, Body: body}, nil
	}
	return nil, cache.ErrNotFound
}

func (m *memCache) PutPage(ctx context.Context, editionDate time.Time, publication, pageURL string, pageNumber int, format, section, title string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cache.ObjectKey(editionDate, publication, pageURL, pageNumber, format)
	m.data[key] = body
	m.puts++
	return key, nil
}

func editionFor(url string) *core.Edition {
	return &core.Edition{
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Publication: "herald",
		Pages: []core.EditionPage{
			{URL: url, PageNumber: 1, Format: "html"},
		},
	}
}

func TestRetryThenSuccessAndCaching(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("page body"))
	}))
	defer srv.Close()

	blob := newMemCache()
	d := New(blob, nil, Options{Workers: 1, MaxRetries: 3, Timeout: 5 * time.Second})

	var slept []time.Duration
	d.sleepFn = func(dur time.Duration) { slept = append(slept, dur) }

	res := d.DownloadEdition(context.Background(), editionFor(srv.URL), false)

	if res.Successful != 1 || res.Failed != 0 {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	// Two 503s then 200: backoffs of 2s and 4s.
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 4*time.Second {
		t.Errorf("expected backoffs [2s 4s], got %v", slept)
	}
	if blob.puts != 1 {
		t.Errorf("expected one cache write, got %d", blob.puts)
	}

	// Second invocation serves from cache with zero network calls.
	mu.Lock()
	before := calls
	mu.Unlock()
	res2 := d.DownloadEdition(context.Background(), editionFor(srv.URL), false)
	if res2.FromCache != 1 || res2.Successful != 1 {
		t.Errorf("expected cache hit, got %+v", res2)
	}
	mu.Lock()
	if calls != before {
		t.Errorf("cache hit should not touch the network, calls went %d -> %d", before, calls)
	}
	mu.Unlock()
}

func TestForceRefreshBypassesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	blob := newMemCache()
	d := New(blob, nil, Options{Workers: 1})
	d.sleepFn = func(time.Duration) {}

	_ = d.DownloadEdition(context.Background(), editionFor(srv.URL), false)
	res := d.DownloadEdition(context.Background(), editionFor(srv.URL), true)

	if res.FromCache != 0 {
		t.Error("force refresh should not count cache hits")
	}
	if blob.puts != 2 {
		t.Errorf("force refresh should rewrite the cache, got %d puts", blob.puts)
	}
}

func TestPerPageFailureDoesNotFailEdition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	edition := &core.Edition{
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Publication: "herald",
		Pages: []core.EditionPage{
			{URL: srv.URL + "/good", PageNumber: 1, Format: "html"},
			{URL: srv.URL + "/bad", PageNumber: 2, Format: "html"},
		},
	}

	d := New(newMemCache(), nil, Options{Workers: 2, MaxRetries: 2, Timeout: 2 * time.Second})
	d.sleepFn = func(time.Duration) {}

	res := d.DownloadEdition(context.Background(), edition, false)

	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", res)
	}
	if len(res.FailedPages) != 1 || res.FailedPages[0].PageNumber != 2 {
		t.Errorf("failed page should be recorded: %+v", res.FailedPages)
	}
	if res.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", res.SuccessRate)
	}
}

func TestProxyRotationPerAttempt(t *testing.T) {
	// Always failing server: every proxied attempt should pull a fresh
	// proxy; the final direct attempt does not.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var mu sync.Mutex
	picks := 0
	picker := func() string {
		mu.Lock()
		defer mu.Unlock()
		picks++
		return "" // direct; we only count selections
	}

	d := New(newMemCache(), picker, Options{Workers: 1, MaxRetries: 3, Timeout: 2 * time.Second})
	d.sleepFn = func(time.Duration) {}

	res := d.DownloadEdition(context.Background(), editionFor(srv.URL), false)
	if res.Failed != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}
	mu.Lock()
	if picks != 3 {
		t.Errorf("expected one proxy pick per proxied attempt, got %d", picks)
	}
	mu.Unlock()
}
