package rag

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

const contextSeparator = "\n"

// Retriever turns a question into a bounded context from one document.
type Retriever struct {
	guard embedGuard
	index indexer
	opts  Options
	log   *zap.Logger
}

func NewRetriever(embedder ai.Embedder, store vectorstore.Store, opts Options, log *zap.Logger) *Retriever {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{
		guard: embedGuard{embedder: embedder, timeout: opts.EmbedTimeout},
		index: indexer{store: store, batchSize: opts.UpsertBatchSize, timeout: opts.IndexTimeout},
		opts:  opts,
		log:   log.Named("retrieve"),
	}
}

// Search returns the top matches of the document whose score is strictly
// above the threshold, best first.
func (r *Retriever) Search(ctx context.Context, query, fileKey string) ([]vectorstore.Match, error) {
	vec, err := r.guard.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	namespace := Namespace(fileKey)
	matches, err := r.index.query(ctx, namespace, vec, r.opts.TopK)
	if err != nil {
		return nil, err
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Score > r.opts.MinScore {
			kept = append(kept, m)
		}
	}
	r.log.Debug("matches filtered",
		zap.String("namespace", namespace),
		zap.Int("candidates", len(matches)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}

// GetContext joins the qualifying matches with newlines and hard-cuts the
// result to the context byte budget. No qualifying match gives "".
func (r *Retriever) GetContext(ctx context.Context, query, fileKey string) (string, error) {
	matches, err := r.Search(ctx, query, fileKey)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return TruncateBytes(strings.Join(texts, contextSeparator), r.opts.MaxContextBytes), nil
}
