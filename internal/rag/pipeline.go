package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

// DocumentSource fetches the raw bytes of a stored document.
type DocumentSource interface {
	Fetch(ctx context.Context, fileKey string) ([]byte, error)
}

// Chunk is one embedded slice of a page. ID is the content hash of the text
// before truncation; Text is what gets stored.
type Chunk struct {
	ID         string `json:"id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Pipeline turns a stored document into an indexed namespace:
// fetch, extract, chunk, embed, upsert.
type Pipeline struct {
	source    DocumentSource
	extractor Extractor
	chunker   *Chunker
	guard     embedGuard
	index     indexer
	opts      Options
	log       *zap.Logger
}

func NewPipeline(source DocumentSource, extractor Extractor, embedder ai.Embedder, store vectorstore.Store, opts Options, log *zap.Logger) *Pipeline {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		source:    source,
		extractor: extractor,
		chunker:   NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		guard:     embedGuard{embedder: embedder, timeout: opts.EmbedTimeout},
		index:     indexer{store: store, batchSize: opts.UpsertBatchSize, timeout: opts.IndexTimeout},
		opts:      opts,
		log:       log.Named("ingest"),
	}
}

// Ingest indexes the document behind fileKey and returns the chunks of its
// first page. Every step must succeed; running it again for the same key
// rewrites the same records.
func (p *Pipeline) Ingest(ctx context.Context, fileKey string) ([]Chunk, error) {
	started := time.Now()
	namespace := Namespace(fileKey)
	log := p.log.With(zap.String("file_key", fileKey), zap.String("namespace", namespace))

	data, err := p.source.Fetch(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	pages, err := p.extractor.Extract(data)
	if err != nil {
		if errors.Is(err, ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	chunks := p.chunkPages(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document has no extractable text", ErrExtractionFailed)
	}
	log.Debug("document chunked", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	records, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := p.index.upsert(ctx, namespace, records); err != nil {
		return nil, err
	}

	log.Info("document ingested",
		zap.Int("pages", len(pages)),
		zap.Int("records", len(records)),
		zap.Duration("took", time.Since(started)),
	)

	first := pages[0].Number
	firstPage := make([]Chunk, 0)
	for _, c := range chunks {
		if c.PageNumber == first {
			firstPage = append(firstPage, c)
		}
	}
	return firstPage, nil
}

// Delete drops the namespace of a document.
func (p *Pipeline) Delete(ctx context.Context, fileKey string) error {
	return p.index.deleteNamespace(ctx, Namespace(fileKey))
}

func (p *Pipeline) chunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range p.chunker.Split(NormalizeNewlines(page.Text)) {
			chunks = append(chunks, Chunk{
				ID:         ContentHash(text),
				PageNumber: page.Number,
				Text:       TruncateBytes(text, p.opts.MaxChunkBytes),
			})
		}
	}
	return chunks
}

// embedChunks embeds every chunk concurrently. The first failure cancels the
// rest. Records with a repeated id are collapsed to the first occurrence.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([]vectorstore.Record, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedConcurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			vec, err := p.guard.embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s of page %d: %w", c.ID[:12], c.PageNumber, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(chunks))
	records := make([]vectorstore.Record, 0, len(chunks))
	for i, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		records = append(records, vectorstore.Record{
			ID:         c.ID,
			Vector:     vectors[i],
			PageNumber: c.PageNumber,
			Text:       c.Text,
		})
	}
	return records, nil
}
