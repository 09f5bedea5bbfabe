// Package app provides application initialization and dependency
// injection: it builds the database pool, language model provider, and
// domain services from configuration, and owns their teardown order.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexusflow/nexusflow/internal/config"
	"github.com/nexusflow/nexusflow/internal/indexer"
	"github.com/nexusflow/nexusflow/internal/llm"
	"github.com/nexusflow/nexusflow/internal/planner"
	"github.com/nexusflow/nexusflow/internal/searcher"
	"github.com/nexusflow/nexusflow/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DBPool   *pgxpool.Pool
	Provider *llm.Provider
	Store    *store.Store
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Planner  *planner.Planner
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	return nil
}
