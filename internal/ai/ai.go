package ai

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured   = errors.New("model provider is not configured")
	ErrEmptyEmbedding  = errors.New("provider returned an empty embedding")
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

// Embedder turns one text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator answers one complete prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is a provider that can do both.
type Client interface {
	Embedder
	Generator
	Close() error
}
