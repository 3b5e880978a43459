package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"newsroom/internal/cache"
	"newsroom/internal/core"
	"newsroom/internal/store"
)

type fakeBlobCache struct {
	objects map[string]*cache.Object
}

func (f *fakeBlobCache) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeBlobCache) Get(ctx context.Context, key string) (*cache.Object, error) {
	if obj, ok := f.objects[key]; ok {
		return obj, nil
	}
	return nil, cache.ErrNotFound
}

type fakeArticleStore struct {
	stored    []core.Article
	processed map[string]bool
}

func (f *fakeArticleStore) StoreArticles(ctx context.Context, articles []core.Article, sourceID, sourceType string) (store.StoreResult, error) {
	f.stored = append(f.stored, articles...)
	return store.StoreResult{New: len(articles)}, nil
}

func (f *fakeArticleStore) WasProcessed(ctx context.Context, day time.Time, sourceType, sourceID string) (bool, error) {
	return f.processed[sourceID], nil
}

const storyHTML = `<html><body><div class="story">
<h2>Farmers Market Opens For The Season</h2>
<p>The downtown farmers market opens for the season this week with more
than thirty vendors selling produce, baked goods, and crafts to visitors
from across the county.</p>
</div></body></html>`

func TestProcessEditionHTML(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	key := "2025-06-01/herald_page_001_abcd1234.html"

	blob := &fakeBlobCache{objects: map[string]*cache.Object{
		key: {Key: key, Body: []byte(storyHTML), Metadata: map[string]string{"publication": "Herald"}},
	}}
	articles := &fakeArticleStore{processed: map[string]bool{}}

	p := NewProcessor(blob, articles)
	res, err := p.ProcessEdition(context.Background(), day, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ProcessedFiles != 1 || res.FailedFiles != 0 {
		t.Fatalf("expected 1 processed file, got %+v", res)
	}
	if len(articles.stored) == 0 {
		t.Fatal("expected stored articles")
	}

	a := articles.stored[0]
	if a.SourceType != core.SourceHTML {
		t.Errorf("expected html source type, got %s", a.SourceType)
	}
	if a.Metadata["publication"] != "Herald" {
		t.Error("blob publication should be stamped onto articles")
	}
	if a.WordCount < 10 {
		t.Errorf("word count too low: %d", a.WordCount)
	}
	if a.ContentHash == "" {
		t.Error("content hash must be set")
	}
}

func TestProcessEditionSkipsProcessed(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	key := "2025-06-01/herald_page_001_abcd1234.html"

	blob := &fakeBlobCache{objects: map[string]*cache.Object{
		key: {Key: key, Body: []byte(storyHTML)},
	}}
	articles := &fakeArticleStore{processed: map[string]bool{key: true}}

	p := NewProcessor(blob, articles)
	res, err := p.ProcessEdition(context.Background(), day, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SkippedFiles != 1 || res.ProcessedFiles != 0 {
		t.Errorf("already-processed files should be skipped, got %+v", res)
	}

	// Force reprocessing overrides the history check.
	res, err = p.ProcessEdition(context.Background(), day, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProcessedFiles != 1 {
		t.Errorf("force should reprocess, got %+v", res)
	}
}

func TestProcessEditionEmptyCache(t *testing.T) {
	p := NewProcessor(&fakeBlobCache{objects: map[string]*cache.Object{}}, &fakeArticleStore{})
	res, err := p.ProcessEdition(context.Background(), time.Now(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalFiles != 0 {
		t.Errorf("empty cache should process nothing, got %+v", res)
	}
}

func TestDetectFileType(t *testing.T) {
	cases := []struct {
		key     string
		content []byte
		want    string
	}{
		{"2025-06-01/x.pdf", nil, "pdf"},
		{"2025-06-01/x.html", nil, "html"},
		{"2025-06-01/x", []byte("%PDF-1.7"), "pdf"},
		{"2025-06-01/x", []byte("<!DOCTYPE html><html>"), "html"},
		{"2025-06-01/x", []byte("plain text"), "html"},
	}
	for _, tc := range cases {
		if got := DetectFileType(tc.key, tc.content); got != tc.want {
			t.Errorf("DetectFileType(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
