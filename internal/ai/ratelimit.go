package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder caps the request rate to the embedding provider.
// Ingestion fans out across chunks, and providers throttle bursts hard.
type RateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

func NewRateLimitedEmbedder(next Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimitedEmbedder{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit wait failed: %w", err)
	}
	return e.next.Embed(ctx, text)
}
