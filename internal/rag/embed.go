package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfchat/internal/ai"
)

// embedGuard is the only path from the RAG core to an embedding provider.
// It normalizes input and turns provider failures into ErrEmbeddingUnavailable
// or ErrEmbeddingEmpty so a zero vector never reaches the index.
type embedGuard struct {
	embedder ai.Embedder
	timeout  time.Duration
}

func (g embedGuard) embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, ai.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.embedder.Embed(ctx, NormalizeNewlines(text))
	if err != nil {
		if errors.Is(err, ai.ErrEmptyEmbedding) {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingEmpty, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, ErrEmbeddingEmpty
	}
	return vec, nil
}
