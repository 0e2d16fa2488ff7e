package rag

import "time"

// Options tunes ingestion and retrieval.
type Options struct {
	ChunkSize        int
	ChunkOverlap     int
	MaxChunkBytes    int
	EmbedConcurrency int
	EmbedTimeout     time.Duration

	UpsertBatchSize int
	IndexTimeout    time.Duration

	TopK            int
	MinScore        float64
	MaxContextBytes int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:        1000,
		ChunkOverlap:     200,
		MaxChunkBytes:    36000,
		EmbedConcurrency: 8,
		EmbedTimeout:     30 * time.Second,
		UpsertBatchSize:  100,
		IndexTimeout:     15 * time.Second,
		TopK:             5,
		MinScore:         0.5,
		MaxContextBytes:  3000,
	}
}

// withDefaults fills zero fields. MinScore is left alone so a zero threshold
// stays expressible.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = d.ChunkOverlap
	}
	if o.MaxChunkBytes <= 0 {
		o.MaxChunkBytes = d.MaxChunkBytes
	}
	if o.EmbedConcurrency <= 0 {
		o.EmbedConcurrency = d.EmbedConcurrency
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = d.EmbedTimeout
	}
	if o.UpsertBatchSize <= 0 {
		o.UpsertBatchSize = d.UpsertBatchSize
	}
	if o.IndexTimeout <= 0 {
		o.IndexTimeout = d.IndexTimeout
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.MaxContextBytes <= 0 {
		o.MaxContextBytes = d.MaxContextBytes
	}
	return o
}
