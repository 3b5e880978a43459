package vector

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"newsroom/internal/store"
)

type fakeSource struct {
	articles []store.IndexableArticle
}

func (f *fakeSource) RecentSummarized(ctx context.Context, hours int) ([]store.IndexableArticle, error) {
	return f.articles, nil
}

type fakeBackend struct {
	schemaDim int
	upserts   [][]Point
}

func (f *fakeBackend) EnsureSchema(ctx context.Context, vectorDim int) error {
	f.schemaDim = vectorDim
	return nil
}

func (f *fakeBackend) Upsert(ctx context.Context, points []Point) error {
	f.upserts = append(f.upserts, points)
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func sampleArticles() []store.IndexableArticle {
	return []store.IndexableArticle{
		{ID: 1, Title: "First", Section: "Local", Summary: "sum one", Content: "content one"},
		{ID: 2, Title: "Second", Section: "Sports", Summary: "", Content: "content two"},
	}
}

func TestObjectIDDeterministic(t *testing.T) {
	a := ObjectID(42)
	b := ObjectID(42)
	if a != b {
		t.Error("object id must be deterministic")
	}
	if a == ObjectID(43) {
		t.Error("different articles need different ids")
	}
	// UUIDv5 format sanity.
	if len(a) != 36 || a[14] != '5' {
		t.Errorf("expected a UUIDv5, got %s", a)
	}
}

func TestSyncIdempotent(t *testing.T) {
	source := &fakeSource{articles: sampleArticles()}
	backend := &fakeBackend{}
	ix := NewIndexer(source, &fakeEmbedder{}, backend)

	n1, err := ix.Sync(context.Background(), 12)
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	n2, err := ix.Sync(context.Background(), 12)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if n1 != 2 || n2 != 2 {
		t.Fatalf("expected 2 points per sync, got %d and %d", n1, n2)
	}

	first, second := backend.upserts[0], backend.upserts[1]
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Error("object ids must be stable across syncs")
		}
		if !reflect.DeepEqual(first[i].Payload, second[i].Payload) {
			t.Error("payloads must be identical across syncs")
		}
	}
}

func TestSyncBM25OnlyWithoutEmbedder(t *testing.T) {
	backend := &fakeBackend{}
	ix := NewIndexer(&fakeSource{articles: sampleArticles()}, nil, backend)

	if _, err := ix.Sync(context.Background(), 12); err != nil {
		t.Fatalf("bm25-only sync failed: %v", err)
	}
	if backend.schemaDim != 0 {
		t.Errorf("no embedder means dim 0, got %d", backend.schemaDim)
	}
	for _, p := range backend.upserts[0] {
		if p.Vector != nil {
			t.Error("bm25-only points must carry no vectors")
		}
	}
}

func TestSyncEmbeddingFailureFallsBackToKeyword(t *testing.T) {
	backend := &fakeBackend{}
	ix := NewIndexer(&fakeSource{articles: sampleArticles()}, &fakeEmbedder{err: errors.New("backend down")}, backend)

	n, err := ix.Sync(context.Background(), 12)
	if err != nil {
		t.Fatalf("embedding failure should not abort sync: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 keyword-only points, got %d", n)
	}
	for _, p := range backend.upserts[0] {
		if p.Vector != nil {
			t.Error("failed embeddings should produce keyword-only points")
		}
	}
}

func TestEmbeddingTextPrefersSummary(t *testing.T) {
	withSummary := store.IndexableArticle{Title: "T", Summary: "the summary", Content: "the content"}
	if got := EmbeddingText(withSummary); got != "T\n\nthe summary" {
		t.Errorf("summary should win, got %q", got)
	}

	noSummary := store.IndexableArticle{Title: "T", Content: "fallback content"}
	if got := EmbeddingText(noSummary); got != "T\n\nfallback content" {
		t.Errorf("content should be the fallback, got %q", got)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	if math.Abs(v[0]-0.6) > 1e-9 || math.Abs(v[1]-0.8) > 1e-9 {
		t.Errorf("expected unit vector [0.6 0.8], got %v", v)
	}

	zero := Normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("zero vectors pass through")
	}
}
