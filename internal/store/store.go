// Package store persists projects, file embeddings and plans in
// PostgreSQL, and executes nearest-neighbor vector search with pgvector.
package store

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates a vector whose length disagrees
	// with the deployment's configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Store provides database access for all nexusflow entities.
//
// Safe for concurrent use; the underlying pgx pool handles connection
// management.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// New creates a Store. dimension is the deployment-wide embedding
// dimension; writes with a different vector length are rejected.
func New(pool *pgxpool.Pool, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:      pool,
		dimension: dimension,
		logger:    logger,
	}
}
