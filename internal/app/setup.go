package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexusflow/nexusflow/db"
	"github.com/nexusflow/nexusflow/internal/config"
	"github.com/nexusflow/nexusflow/internal/indexer"
	"github.com/nexusflow/nexusflow/internal/llm"
	"github.com/nexusflow/nexusflow/internal/planner"
	"github.com/nexusflow/nexusflow/internal/scanner"
	"github.com/nexusflow/nexusflow/internal/searcher"
	"github.com/nexusflow/nexusflow/internal/store"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	provider, err := llm.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing model provider: %w", err)
	}
	a.Provider = provider

	embedder := llm.NewEmbedder(provider.Embedder, llm.EmbedderConfig{
		MaxChars:    cfg.MaxEmbedChars,
		Dimension:   cfg.EmbeddingDimension,
		Concurrency: cfg.EmbedConcurrency,
	}, logger)
	completer := llm.NewCompleter(provider.Genkit, provider.ModelName)

	a.Store = store.New(pool, cfg.EmbeddingDimension, logger)

	sc := scanner.New(scanner.Config{
		Extensions:   cfg.SupportedExtensions,
		ExcludedDirs: cfg.ExcludedDirs,
		MaxFileSize:  cfg.MaxFileSizeBytes(),
	}, logger)

	a.Indexer = indexer.New(a.Store, a.Store, embedder, sc, cfg.EmbedConcurrency, logger)
	a.Searcher = searcher.New(a.Store, embedder, cfg.SnippetLength, logger)
	a.Planner = planner.New(a.Store, a.Store, a.Searcher, completer, planner.Config{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger)

	return a, nil
}

func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
