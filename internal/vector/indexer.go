// Package vector syncs summarized articles into a keyword+vector search
// index. Object identity is a UUIDv5 of the article id, so repeated syncs
// are idempotent.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsroom/internal/logger"
	"newsroom/internal/store"
)

// Point is one indexable object: deterministic id, payload, and an
// optional embedding vector.
type Point struct {
	ID      string
	Vector  []float64
	Payload map[string]any
}

// Backend is a search index that accepts point upserts.
type Backend interface {
	EnsureSchema(ctx context.Context, vectorDim int) error
	Upsert(ctx context.Context, points []Point) error
}

// indexSource is the slice of the article store the indexer reads.
type indexSource interface {
	RecentSummarized(ctx context.Context, hours int) ([]store.IndexableArticle, error)
}

// Indexer drives one sync pass.
type Indexer struct {
	source   indexSource
	embedder Embedder // nil enables BM25-only mode
	backend  Backend
	log      zerolog.Logger
}

// NewIndexer wires an indexer. embedder may be nil when no embedding
// backend is configured; the index then runs keyword-only.
func NewIndexer(source indexSource, embedder Embedder, backend Backend) *Indexer {
	return &Indexer{source: source, embedder: embedder, backend: backend, log: logger.With("vector")}
}

// ObjectID derives the deterministic UUIDv5 identity for an article.
func ObjectID(articleID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("article:%d", articleID))).String()
}

// EmbeddingText builds the text embedded for one article: title plus its
// summary, or leading content when no summary exists.
func EmbeddingText(a store.IndexableArticle) string {
	body := a.Summary
	if body == "" {
		body = a.Content
		if len(body) > 2000 {
			body = body[:2000]
		}
	}
	return a.Title + "\n\n" + body
}

// Sync indexes articles summarized and updated within the trailing window.
// The same updated set always produces the same object ids and payloads.
func (ix *Indexer) Sync(ctx context.Context, hours int) (int, error) {
	articles, err := ix.source.RecentSummarized(ctx, hours)
	if err != nil {
		return 0, fmt.Errorf("vector: source fetch failed: %w", err)
	}
	if len(articles) == 0 {
		ix.log.Info().Msg("no updated summarized articles to sync")
		return 0, nil
	}

	var vectors [][]float64
	if ix.embedder != nil {
		texts := make([]string, len(articles))
		for i, a := range articles {
			texts[i] = EmbeddingText(a)
		}
		vectors, err = ix.embedder.Embed(ctx, texts)
		if err != nil {
			ix.log.Warn().Err(err).Msg("embedding failed, continuing keyword-only")
			vectors = nil
		}
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if err := ix.backend.EnsureSchema(ctx, dim); err != nil {
		return 0, err
	}

	points := make([]Point, 0, len(articles))
	for i, a := range articles {
		payload := map[string]any{
			"article_id": a.ID,
			"title":      a.Title,
			"section":    a.Section,
			"summary":    a.Summary,
			"content":    a.Content,
		}
		if a.DatePublished != nil {
			payload["date_published"] = a.DatePublished.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		p := Point{ID: ObjectID(a.ID), Payload: payload}
		if vectors != nil {
			p.Vector = vectors[i]
		}
		points = append(points, p)
	}

	if err := ix.backend.Upsert(ctx, points); err != nil {
		return 0, err
	}

	ix.log.Info().Int("points", len(points)).Bool("vectors", vectors != nil).Msg("index sync complete")
	return len(points), nil
}
