package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Projects    ProjectStore  // Required
	Indexer     Indexer       // Required
	Searcher    Searcher      // Required
	Planner     Planner       // Required
	Pool        *pgxpool.Pool // Optional: nil disables pool stats in /ready
	DefaultTopK int           // Search result count when top_k is omitted
	CORSOrigins []string      // Allowed origins for CORS
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
// ctx bounds background index runs triggered through the API; canceling
// it stops scheduling further files in any in-flight run.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Projects == nil {
		return nil, errors.New("project store is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaultTopK := cfg.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = 10
	}

	ph := &projectHandler{
		store:   cfg.Projects,
		indexer: cfg.Indexer,
		baseCtx: ctx,
		logger:  logger,
	}
	sh := &searchHandler{
		searcher:    cfg.Searcher,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
	plh := &planHandler{
		planner: cfg.Planner,
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Project CRUD and index triggering
	mux.HandleFunc("GET /api/v1/projects", ph.listProjects)
	mux.HandleFunc("POST /api/v1/projects", ph.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", ph.getProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", ph.deleteProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/index", ph.triggerIndex)

	// Semantic search
	mux.HandleFunc("POST /api/v1/search", sh.search)

	// Plans
	mux.HandleFunc("POST /api/v1/plans/generate", plh.generatePlan)
	mux.HandleFunc("GET /api/v1/plans/{id}", plh.getPlan)
	mux.HandleFunc("GET /api/v1/projects/{id}/plans", plh.listPlans)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → Logging → CORS → RateLimit → Routes
	// CORS must be before RateLimit so preflight OPTIONS gets proper
	// CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
