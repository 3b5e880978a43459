package vector

import (
	"context"
	"fmt"
	"math"

	"newsroom/internal/llm"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder embeds through an OpenAI-compatible /embeddings endpoint,
// with an optional local fallback hook for offline deployments.
type OpenAIEmbedder struct {
	client *llm.Client
	model  string
	// Fallback, when set, is tried after an API failure.
	Fallback func(ctx context.Context, texts []string) ([][]float64, error)
}

// NewOpenAIEmbedder builds the preferred embedding backend.
func NewOpenAIEmbedder(client *llm.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed returns one normalized vector per input text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings(ctx, &llm.EmbeddingsRequest{Model: e.model, Input: texts})
	if err != nil {
		if e.Fallback != nil {
			return e.Fallback(ctx, texts)
		}
		return nil, fmt.Errorf("vector: embedding request failed: %w", err)
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = Normalize(d.Embedding)
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("vector: backend returned no embedding for input %d", i)
		}
	}
	return vectors, nil
}

// Normalize scales a vector to unit length for cosine-distance consumers.
// Zero vectors pass through unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
