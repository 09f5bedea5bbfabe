// Package searcher answers semantic queries over a project's indexed
// files: embed the query, run nearest-neighbor retrieval, and shape the
// rows into ranked results.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexusflow/nexusflow/internal/store"
)

// Sentinel errors for request validation.
var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrInvalidTopK = errors.New("top_k must be between 1 and 50")
)

// Bounds for the top_k request parameter. Requests outside the range
// are rejected, not clamped.
const (
	MinTopK = 1
	MaxTopK = 50
)

// EmbeddingStore defines the retrieval operation the searcher needs.
type EmbeddingStore interface {
	NearestEmbeddings(ctx context.Context, projectID uuid.UUID, query []float32, limit int) ([]store.SearchHit, error)
}

// Embedder generates a vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one ranked match. Similarity is 1 minus cosine distance,
// higher is closer. Content is truncated to the configured snippet
// length.
type Result struct {
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

// Searcher runs embed-then-retrieve queries.
type Searcher struct {
	embeddings    EmbeddingStore
	embedder      Embedder
	snippetLength int
	logger        *slog.Logger
}

// New creates a Searcher. snippetLength bounds result content; values
// below 1 disable truncation.
func New(embeddings EmbeddingStore, embedder Embedder, snippetLength int, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		embeddings:    embeddings,
		embedder:      embedder,
		snippetLength: snippetLength,
		logger:        logger,
	}
}

// Search returns up to topK files from the project ranked by cosine
// similarity to the query. Fewer rows than topK simply means the index
// holds fewer files; it is not an error.
func (s *Searcher) Search(ctx context.Context, projectID uuid.UUID, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK < MinTopK || topK > MaxTopK {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vector) == 0 {
		// Upstream produced nothing for the query text; there is no
		// vector to rank against.
		s.logger.Debug("empty query embedding", "project_id", projectID)
		return []Result{}, nil
	}

	hits, err := s.embeddings.NearestEmbeddings(ctx, projectID, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			FilePath:   hit.FilePath,
			FileName:   hit.FileName,
			Snippet:    truncate(hit.Content, s.snippetLength),
			Similarity: 1 - hit.Distance,
		})
	}
	return results, nil
}

// truncate bounds s to limit runes.
func truncate(s string, limit int) string {
	if limit < 1 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
