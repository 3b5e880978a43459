package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// className is the Weaviate class holding article objects.
const className = "Article"

// WeaviateBackend upserts into a Weaviate instance over REST. BM25 search
// works without vectors; when embeddings are supplied they ride along on
// each object.
type WeaviateBackend struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewWeaviateBackend builds a REST client for one Weaviate deployment.
func NewWeaviateBackend(baseURL, apiKey string) *WeaviateBackend {
	return &WeaviateBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureSchema creates the Article class when missing: vectorizer none,
// BM25 enabled.
func (w *WeaviateBackend) EnsureSchema(ctx context.Context, vectorDim int) error {
	var schema struct {
		Classes []struct {
			Class string `json:"class"`
		} `json:"classes"`
	}
	if err := w.request(ctx, http.MethodGet, "/v1/schema", nil, &schema); err != nil {
		return fmt.Errorf("vector: weaviate schema read failed: %w", err)
	}
	for _, c := range schema.Classes {
		if c.Class == className {
			return nil
		}
	}

	payload := map[string]any{
		"class":      className,
		"vectorizer": "none",
		"properties": []map[string]any{
			{"name": "article_id", "dataType": []string{"int"}},
			{"name": "title", "dataType": []string{"text"}},
			{"name": "section", "dataType": []string{"text"}},
			{"name": "summary", "dataType": []string{"text"}},
			{"name": "content", "dataType": []string{"text"}},
			{"name": "date_published", "dataType": []string{"date"}},
		},
		"moduleConfig": map[string]any{"bm25": map[string]any{}},
	}
	if err := w.request(ctx, http.MethodPost, "/v1/schema", payload, nil); err != nil {
		return fmt.Errorf("vector: weaviate class creation failed: %w", err)
	}
	return nil
}

// Upsert batches objects into Weaviate. Object ids are supplied by the
// caller, so repeated syncs overwrite in place.
func (w *WeaviateBackend) Upsert(ctx context.Context, points []Point) error {
	objects := make([]map[string]any, 0, len(points))
	for _, p := range points {
		obj := map[string]any{
			"class":      className,
			"id":         p.ID,
			"properties": p.Payload,
		}
		if len(p.Vector) > 0 {
			obj["vector"] = p.Vector
		}
		objects = append(objects, obj)
	}
	if err := w.request(ctx, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": objects}, nil); err != nil {
		return fmt.Errorf("vector: weaviate batch upsert failed: %w", err)
	}
	return nil
}

func (w *WeaviateBackend) request(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
		req.Header.Set("X-API-KEY", w.apiKey)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weaviate %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(detail), 500))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
