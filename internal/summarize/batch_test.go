package summarize

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/llm"
)

// mockStore implements articleStore in memory.
type mockStore struct {
	mu        sync.Mutex
	pending   []core.Article
	summaries map[int64]core.SummaryPayload
	statuses  map[int64]core.Status
	taxonomy  map[int64][]string
}

func newMockStore(pending ...core.Article) *mockStore {
	return &mockStore{
		pending:   pending,
		summaries: map[int64]core.SummaryPayload{},
		statuses:  map[int64]core.Status{},
		taxonomy:  map[int64][]string{},
	}
}

func (m *mockStore) ArticlesForProcessing(ctx context.Context, status core.Status, limit int) ([]core.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Article
	for _, a := range m.pending {
		if m.statuses[a.ID] == "" && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) StoreSummary(ctx context.Context, articleID int64, payload core.SummaryPayload, modelUsed string, tokensUsed, generationMs int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[articleID] = payload
	return articleID, nil
}

func (m *mockStore) ReplaceTaxonomy(ctx context.Context, articleID int64, tags, entities []string, topics []core.TopicScore, events []core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taxonomy[articleID] = tags
	return nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, articleID int64, status core.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[articleID] = status
	return nil
}

// mockChat returns a canned response per call, or an error.
type mockChat struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (m *mockChat) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{
		Model: req.Model,
		Choices: []struct {
			Message      llm.Message `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{
			{Message: llm.Message{Role: "assistant", Content: m.response}, FinishReason: "stop"},
		},
	}, nil
}

func article(id int64, title string) core.Article {
	return core.Article{
		ID:      id,
		Title:   title,
		Content: strings.Repeat("local news content ", 20),
		Status:  core.StatusExtracted,
	}
}

const goodResponse = `{"summary":"A fine summary of the article.","key_points":["point one"],"sentiment":"positive","tags":["schools"],"entities":["Town Council"],"topics":[{"label":"education","score":0.9}],"confidence_score":0.9}`

func newTestBatcher(store *mockStore, chat *mockChat, opts Options) *Batcher {
	b := NewBatcher(store, chat, llm.NewModelFailover("model-a"), opts)
	b.sleepFn = func(time.Duration) {}
	return b
}

func TestRunSummarizesPendingArticles(t *testing.T) {
	store := newMockStore(article(1, "First"), article(2, "Second"))
	chat := &mockChat{response: goodResponse}

	b := newTestBatcher(store, chat, Options{BatchSize: 10, MaxBatches: 3})
	stats, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Successful != 2 || stats.Failed != 0 {
		t.Fatalf("expected 2 successes, got %+v", stats)
	}
	if store.statuses[1] != core.StatusSummarized || store.statuses[2] != core.StatusSummarized {
		t.Error("articles should be flipped to summarized")
	}
	if store.summaries[1].Summary != "A fine summary of the article." {
		t.Errorf("summary not stored: %+v", store.summaries[1])
	}
	if len(store.taxonomy[1]) != 1 || store.taxonomy[1][0] != "schools" {
		t.Errorf("tags not stored: %v", store.taxonomy[1])
	}
	if stats.Unproductive() {
		t.Error("a successful run is productive")
	}
}

func TestRunToleratesMalformedResponses(t *testing.T) {
	store := newMockStore(article(1, "Only"))
	chat := &mockChat{response: "Sorry, here is a plain answer.\n- a bullet point"}

	b := newTestBatcher(store, chat, Options{BatchSize: 5, MaxBatches: 1})
	stats, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Successful != 1 {
		t.Fatalf("tolerant parsing should still succeed, got %+v", stats)
	}
	payload := store.summaries[1]
	if payload.Summary == "" || payload.Sentiment != "neutral" {
		t.Errorf("synthesized payload malformed: %+v", payload)
	}
}

func TestRunRecordsPerArticleFailures(t *testing.T) {
	store := newMockStore(article(1, "Failing"))
	chat := &mockChat{err: &llm.APIError{StatusCode: 429, Body: "rate limited"}}

	b := newTestBatcher(store, chat, Options{BatchSize: 5, MaxBatches: 1})
	stats, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("per-article failures must not abort the run: %v", err)
	}
	if stats.Failed != 1 || stats.Successful != 0 {
		t.Errorf("failure should be recorded, got %+v", stats)
	}
	if !stats.Unproductive() {
		t.Error("all-failed runs are unproductive")
	}
	if store.statuses[1] == core.StatusSummarized {
		t.Error("failed article must stay extracted for retry")
	}
}

func TestRunStopsWhenQueueEmpty(t *testing.T) {
	store := newMockStore()
	chat := &mockChat{response: goodResponse}

	b := newTestBatcher(store, chat, Options{BatchSize: 5, MaxBatches: 10})
	stats, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.BatchesProcessed != 0 || stats.TotalArticles != 0 {
		t.Errorf("empty queue should process nothing, got %+v", stats)
	}
}

func TestRunRespectsBatchLimits(t *testing.T) {
	var articles []core.Article
	for i := int64(1); i <= 6; i++ {
		articles = append(articles, article(i, "A"))
	}
	store := newMockStore(articles...)
	chat := &mockChat{response: goodResponse}

	// 2 per batch, max 2 batches: only 4 of 6 get summarized.
	b := newTestBatcher(store, chat, Options{BatchSize: 2, MaxBatches: 2})
	stats, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.BatchesProcessed != 2 || stats.Successful != 4 {
		t.Errorf("batch bounds not honored: %+v", stats)
	}
}

func TestTruncateContent(t *testing.T) {
	short := "short content."
	if got := TruncateContent(short, 3000); got != short {
		t.Error("short content should pass through untouched")
	}

	long := strings.Repeat("This is a sentence. ", 1000) // ~20k chars
	got := TruncateContent(long, 1000)                   // budget 4000 chars
	if len(got) > 4004 {
		t.Errorf("truncation exceeded budget: %d chars", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated content should end with ellipsis")
	}
	trimmed := strings.TrimSuffix(got, "...")
	if !strings.HasSuffix(trimmed, ".") {
		t.Error("truncation should prefer a sentence boundary")
	}
}

func TestBuildUserPrompt(t *testing.T) {
	a := core.Article{Title: "Budget Vote", Section: "", Content: "c"}
	prompt := BuildUserPrompt(a, "content here")

	if !strings.Contains(prompt, "Title: Budget Vote") {
		t.Error("title missing from prompt")
	}
	if !strings.Contains(prompt, "Section: General") {
		t.Error("empty section should render as General")
	}
	if !strings.Contains(prompt, "Published: Unknown") {
		t.Error("missing date should render as Unknown")
	}
	if !strings.Contains(prompt, `"confidence_score"`) {
		t.Error("json schema block missing")
	}
}
