package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// FileEmbedding is one indexed file chunk. Indexing currently always
// writes chunk 0; the chunk index exists for future multi-chunk files.
type FileEmbedding struct {
	ProjectID  uuid.UUID
	FilePath   string
	FileName   string
	Extension  string
	Content    string
	ChunkIndex int
	Embedding  []float32
}

// SearchHit is one nearest-neighbor result with its cosine distance to
// the query vector.
type SearchHit struct {
	FilePath string
	FileName string
	Content  string
	Distance float64
}

// InsertFileEmbedding persists one embedding row. Writes whose vector
// length disagrees with the configured dimension are rejected with
// ErrDimensionMismatch.
func (s *Store) InsertFileEmbedding(ctx context.Context, fe FileEmbedding) error {
	if len(fe.Embedding) != s.dimension {
		return fmt.Errorf("%w: got %d, store configured for %d",
			ErrDimensionMismatch, len(fe.Embedding), s.dimension)
	}

	vec := pgvector.NewVector(fe.Embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO file_embeddings (project_id, file_path, file_name, extension, content, chunk_index, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fe.ProjectID, fe.FilePath, fe.FileName, fe.Extension, fe.Content, fe.ChunkIndex, vec)
	if err != nil {
		return fmt.Errorf("inserting embedding for %q: %w", fe.FilePath, err)
	}
	return nil
}

// DeleteFileEmbeddings removes every embedding row owned by a project.
// Called before each index run so the index always fully reflects the
// latest scanner output.
func (s *Store) DeleteFileEmbeddings(ctx context.Context, projectID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM file_embeddings WHERE project_id = $1", projectID)
	if err != nil {
		return fmt.Errorf("deleting embeddings for project %s: %w", projectID, err)
	}
	return nil
}

// CountFileEmbeddings returns the number of embedding rows for a project.
func (s *Store) CountFileEmbeddings(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM file_embeddings WHERE project_id = $1", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting embeddings for project %s: %w", projectID, err)
	}
	return count, nil
}

// NearestEmbeddings returns the k rows closest to the query vector by
// cosine distance, scoped to one project. Ties are broken by row id so
// the ordering is a stable total order.
func (s *Store) NearestEmbeddings(ctx context.Context, projectID uuid.UUID, query []float32, k int) ([]SearchHit, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store configured for %d",
			ErrDimensionMismatch, len(query), s.dimension)
	}

	vec := pgvector.NewVector(query)
	rows, err := s.pool.Query(ctx,
		`SELECT file_path, file_name, content, embedding <=> $2 AS distance
		 FROM file_embeddings
		 WHERE project_id = $1
		 ORDER BY distance, id
		 LIMIT $3`,
		projectID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search for project %s: %w", projectID, err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0, k)
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.FilePath, &h.FileName, &h.Content, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search for project %s: %w", projectID, err)
	}
	return hits, nil
}
