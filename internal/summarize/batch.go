// Package summarize implements the backpressured summarization batch core:
// pull extracted articles, call the LLM with model failover, parse the
// response tolerantly, and write summary plus taxonomy atomically.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/core"
	"newsroom/internal/llm"
	"newsroom/internal/logger"
)

const (
	// contentTokenBudget caps article content passed to the model.
	contentTokenBudget = 3000
	// taskStagger spaces concurrent task launches within a batch.
	taskStagger = 100 * time.Millisecond
	// batchPause separates consecutive batches.
	batchPause = time.Second
)

// chatClient is the slice of the LLM client the batcher uses.
type chatClient interface {
	ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// articleStore is the slice of the article store the batcher uses.
type articleStore interface {
	ArticlesForProcessing(ctx context.Context, status core.Status, limit int) ([]core.Article, error)
	StoreSummary(ctx context.Context, articleID int64, payload core.SummaryPayload, modelUsed string, tokensUsed, generationMs int) (int64, error)
	ReplaceTaxonomy(ctx context.Context, articleID int64, tags, entities []string, topics []core.TopicScore, events []core.Event) error
	UpdateStatus(ctx context.Context, articleID int64, status core.Status) error
}

// Options configure the batch loop.
type Options struct {
	BatchSize  int
	MaxBatches int
	MaxTokens  int // Completion token cap per request
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = 10
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1000
	}
	return o
}

// BatchStats aggregates one batch.
type BatchStats struct {
	Total   int
	Success int
	Failed  int
	Errors  int
}

// RunStats aggregates a full batch loop.
type RunStats struct {
	BatchesProcessed int       `json:"batches_processed"`
	TotalArticles    int       `json:"total_articles"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	Errors           int       `json:"errors"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// Unproductive reports whether the run should exit non-zero: failures
// with zero successes.
func (s RunStats) Unproductive() bool {
	return s.Successful == 0 && (s.Failed > 0 || s.Errors > 0)
}

// Batcher drives the summarization loop.
type Batcher struct {
	store    articleStore
	client   chatClient
	failover *llm.ModelFailover
	opts     Options
	log      zerolog.Logger
	sleepFn  func(time.Duration) // Test seam for pacing sleeps
}

// NewBatcher wires a batch processor.
func NewBatcher(store articleStore, client chatClient, failover *llm.ModelFailover, opts Options) *Batcher {
	return &Batcher{
		store:    store,
		client:   client,
		failover: failover,
		opts:     opts.withDefaults(),
		log:      logger.With("summarize"),
		sleepFn:  time.Sleep,
	}
}

// Run processes up to MaxBatches batches of extracted articles. Articles
// are pulled oldest-extraction-first; within a batch they run
// concurrently with a short stagger. Per-article failures never abort the
// batch.
func (b *Batcher) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{StartTime: time.Now().UTC()}

	for batchNum := 0; batchNum < b.opts.MaxBatches; batchNum++ {
		articles, err := b.store.ArticlesForProcessing(ctx, core.StatusExtracted, b.opts.BatchSize)
		if err != nil {
			stats.EndTime = time.Now().UTC()
			return stats, fmt.Errorf("summarize: pending fetch failed: %w", err)
		}
		if len(articles) == 0 {
			b.log.Info().Msg("no more pending articles to process")
			break
		}

		b.log.Info().Int("batch", batchNum+1).Int("max", b.opts.MaxBatches).
			Int("articles", len(articles)).Msg("starting batch")

		batchStats := b.processBatch(ctx, articles)
		stats.BatchesProcessed++
		stats.TotalArticles += batchStats.Total
		stats.Successful += batchStats.Success
		stats.Failed += batchStats.Failed
		stats.Errors += batchStats.Errors

		if batchNum < b.opts.MaxBatches-1 {
			select {
			case <-ctx.Done():
				stats.EndTime = time.Now().UTC()
				return stats, ctx.Err()
			default:
				b.sleepFn(batchPause)
			}
		}
	}

	stats.EndTime = time.Now().UTC()
	b.log.Info().Int("batches", stats.BatchesProcessed).Int("successful", stats.Successful).
		Int("failed", stats.Failed).Int("errors", stats.Errors).Msg("batch processing complete")
	return stats, nil
}

// processBatch runs one batch concurrently. The stagger spaces request
// starts to stay friendly with backend rate limits.
func (b *Batcher) processBatch(ctx context.Context, articles []core.Article) BatchStats {
	stats := BatchStats{Total: len(articles)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range articles {
		if i > 0 {
			b.sleepFn(taskStagger)
		}
		wg.Add(1)
		go func(article core.Article) {
			defer wg.Done()
			err := b.processArticle(ctx, article)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Success++
			case ctx.Err() != nil:
				stats.Errors++
			default:
				stats.Failed++
				b.log.Warn().Err(err).Int64("article", article.ID).Msg("article summarization failed")
			}
		}(articles[i])
	}
	wg.Wait()

	b.log.Info().Int("success", stats.Success).Int("failed", stats.Failed).
		Int("errors", stats.Errors).Msg("batch completed")
	return stats
}

// processArticle summarizes one article and persists the result: summary
// upsert, taxonomy replacement, then the status flip to summarized.
func (b *Batcher) processArticle(ctx context.Context, article core.Article) error {
	start := time.Now()

	content := TruncateContent(article.Content, contentTokenBudget)
	userPrompt := BuildUserPrompt(article, content)

	var resp *llm.ChatResponse
	modelUsed, err := b.failover.Do(func(model string) error {
		var callErr error
		resp, callErr = b.client.ChatCompletion(ctx, &llm.ChatRequest{
			Model: model,
			Messages: []llm.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Temperature:    0.3,
			MaxTokens:      b.opts.MaxTokens,
			ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
		})
		return callErr
	})
	if err != nil {
		return fmt.Errorf("summarize: chat call failed for article %d: %w", article.ID, err)
	}

	payload, usedFallback := parsePayload(resp.Text())
	if usedFallback {
		b.log.Debug().Int64("article", article.ID).Msg("tolerant json fallback used")
	}

	elapsed := int(time.Since(start).Milliseconds())

	if _, err := b.store.StoreSummary(ctx, article.ID, payload, modelUsed, resp.Usage.TotalTokens, elapsed); err != nil {
		return fmt.Errorf("summarize: summary store failed for article %d: %w", article.ID, err)
	}
	if err := b.store.ReplaceTaxonomy(ctx, article.ID, payload.Tags, payload.Entities, payload.Topics, payload.EventDates); err != nil {
		return fmt.Errorf("summarize: taxonomy store failed for article %d: %w", article.ID, err)
	}
	if err := b.store.UpdateStatus(ctx, article.ID, core.StatusSummarized); err != nil {
		return fmt.Errorf("summarize: status update failed for article %d: %w", article.ID, err)
	}

	b.log.Info().Int64("article", article.ID).Str("model", modelUsed).
		Int("ms", elapsed).Msg("article summarized")
	return nil
}

// parsePayload decodes the model output through the tolerant JSON
// extractor into a typed payload.
func parsePayload(raw string) (core.SummaryPayload, bool) {
	obj, usedFallback := llm.ExtractJSONObject(raw)

	var payload core.SummaryPayload
	encoded, err := json.Marshal(obj)
	if err == nil {
		_ = json.Unmarshal(encoded, &payload)
	}
	if payload.Sentiment == "" {
		payload.Sentiment = "neutral"
	}
	if payload.ConfidenceScore == 0 {
		payload.ConfidenceScore = 0.6
	}
	return payload, usedFallback
}
