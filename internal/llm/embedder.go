// Package llm adapts the Genkit AI surface to the narrow interfaces the
// rest of the pipeline consumes.
package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/newshound/newshound/internal/log"
)

// Embedder wraps a Genkit embedder and enforces the vector size the
// index schema expects.
type Embedder struct {
	embedder   ai.Embedder
	vectorSize int
	options    any
	logger     log.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithEmbedOptions sets provider-specific options forwarded with every
// embed request, e.g. Gemini's output dimensionality.
func WithEmbedOptions(options any) EmbedderOption {
	return func(e *Embedder) { e.options = options }
}

// NewEmbedder creates an Embedder.
func NewEmbedder(embedder ai.Embedder, vectorSize int, logger log.Logger, opts ...EmbedderOption) *Embedder {
	e := &Embedder{embedder: embedder, vectorSize: vectorSize, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in a single provider call, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = &ai.Document{
			Content: []*ai.Part{ai.NewTextPart(text)},
		}
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: input, Options: e.options})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != e.vectorSize {
			return nil, fmt.Errorf("embedding %d has dimension %d, index expects %d", i, len(emb.Embedding), e.vectorSize)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// VectorSize reports the configured embedding dimension.
func (e *Embedder) VectorSize() int {
	return e.vectorSize
}
