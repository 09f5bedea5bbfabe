package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/semaphore"
)

// Embedder turns text into fixed-length vectors. It enforces the input
// character ceiling and bounds concurrent upstream calls; callers that
// exceed the cap block until a slot frees.
//
// Safe for concurrent use.
type Embedder struct {
	embedder  ai.Embedder
	maxChars  int
	dimension int
	sem       *semaphore.Weighted
	logger    *slog.Logger
}

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	// MaxChars is the input truncation ceiling in characters.
	MaxChars int

	// Dimension is the vector length the provider is expected to return.
	// A mismatch is logged, not rejected; storage enforces the hard check.
	Dimension int

	// Concurrency caps in-flight upstream requests.
	Concurrency int
}

// NewEmbedder wraps the given provider embedder.
func NewEmbedder(embedder ai.Embedder, cfg EmbedderConfig, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &Embedder{
		embedder:  embedder,
		maxChars:  cfg.MaxChars,
		dimension: cfg.Dimension,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:    logger,
	}
}

// Embed generates a vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for multiple texts in one upstream call.
// The whole batch fails if any item fails; partial tolerance is the
// indexing pipeline's job, not this layer's.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(e.prepare(text), nil)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: acquiring embed slot: %v", ErrProvider, err)
	}
	defer e.sem.Release(1)

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProvider, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if e.dimension > 0 && len(emb.Embedding) > 0 && len(emb.Embedding) != e.dimension {
			e.logger.Warn("embedding dimension mismatch",
				"expected", e.dimension, "got", len(emb.Embedding))
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}

// prepare truncates text to the character ceiling and normalizes
// newlines to spaces, which improves embedding quality for code.
func (e *Embedder) prepare(text string) string {
	if e.maxChars > 0 && len(text) > e.maxChars {
		runes := []rune(text)
		if len(runes) > e.maxChars {
			text = string(runes[:e.maxChars])
		}
	}
	return strings.ReplaceAll(text, "\n", " ")
}
