package server

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/api/handlers"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Pinger reports whether the index backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	// TokenValidator guards /api/v1 when non-nil.
	TokenValidator middleware.TokenValidator
	MaxBodyBytes   int64
	Logger         *zap.Logger
	Index          Pinger
	// Collection tags request traces.
	Collection string

	QueryHandler  *handlers.QueryHandler
	IngestHandler *handlers.IngestHandler
	StatsHandler  *handlers.StatsHandler
	// QueryLogHandler is nil when the backend keeps no query logs.
	QueryLogHandler *handlers.QueryLogHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.Collection))
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Index != nil {
			if err := cfg.Index.Ping(r.Context()); err != nil {
				api.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "index": err.Error()})
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenValidator != nil {
			r.Use(middleware.BearerAuth(cfg.TokenValidator))
		}

		r.Post("/query", cfg.QueryHandler.Query)
		r.Post("/ingest", cfg.IngestHandler.Ingest)
		r.Get("/stats", cfg.StatsHandler.Stats)
		if cfg.QueryLogHandler != nil {
			r.Get("/query-logs", cfg.QueryLogHandler.List)
		}
	})

	return r
}
