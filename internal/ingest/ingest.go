// Package ingest holds the ancillary source adapters (Reddit, NWS alerts,
// Facebook Pages, scanner feeds) that produce article records directly.
package ingest

import (
	"context"

	"newsroom/internal/core"
	"newsroom/internal/store"
)

// articleSink is the slice of the article store the ingesters write to.
// Content-hash conflicts turn into merges, so re-ingesting is safe.
type articleSink interface {
	StoreArticles(ctx context.Context, articles []core.Article, sourceID, sourceType string) (store.StoreResult, error)
}
