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

// collectionName is the Qdrant collection holding article points.
const collectionName = "articles"

// QdrantBackend upserts into a Qdrant instance over REST with explicit
// point ids.
type QdrantBackend struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewQdrantBackend builds a REST client for one Qdrant deployment.
func NewQdrantBackend(baseURL, apiKey string) *QdrantBackend {
	return &QdrantBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureSchema creates the collection when missing, sized from the first
// embedding with cosine distance.
func (q *QdrantBackend) EnsureSchema(ctx context.Context, vectorDim int) error {
	err := q.request(ctx, http.MethodGet, "/collections/"+collectionName, nil, nil)
	if err == nil {
		return nil
	}

	payload := map[string]any{
		"vectors": map[string]any{
			"size":     vectorDim,
			"distance": "Cosine",
		},
	}
	if err := q.request(ctx, http.MethodPut, "/collections/"+collectionName, payload, nil); err != nil {
		return fmt.Errorf("vector: qdrant collection creation failed: %w", err)
	}
	return nil
}

// Upsert writes points with explicit ids; repeated syncs overwrite.
func (q *QdrantBackend) Upsert(ctx context.Context, points []Point) error {
	qPoints := make([]map[string]any, 0, len(points))
	for _, p := range points {
		point := map[string]any{
			"id":      p.ID,
			"payload": p.Payload,
		}
		if len(p.Vector) > 0 {
			point["vector"] = p.Vector
		}
		qPoints = append(qPoints, point)
	}

	path := "/collections/" + collectionName + "/points?wait=true"
	if err := q.request(ctx, http.MethodPut, path, map[string]any{"points": qPoints}, nil); err != nil {
		return fmt.Errorf("vector: qdrant upsert failed: %w", err)
	}
	return nil
}

func (q *QdrantBackend) request(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(detail), 500))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
