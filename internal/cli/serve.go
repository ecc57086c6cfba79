package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docrag/internal/api/handlers"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/jobs"
	"github.com/cloo-solutions/docrag/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd returns the serve command
func ServeCmd(opts ...AppOption) *cobra.Command {
	var (
		port            string
		reindexInterval time.Duration
		noMigrate       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves query, ingest and stats over HTTP. With --reindex-interval the data folder is re-ingested periodically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			configure := func(cfg *config.Config) {
				if port != "" {
					cfg.Port = port
				}
				if cmd.Flags().Changed("reindex-interval") {
					cfg.ReindexInterval = reindexInterval
				}
			}
			appOpts := opts
			if noMigrate {
				appOpts = append(append([]AppOption{}, opts...), WithoutMigrations())
			}
			return withApp(cmd.Context(), "json", configure, appOpts, runServe)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on")
	cmd.Flags().DurationVar(&reindexInterval, "reindex-interval", 0, "Re-ingest the data folder on this interval, 0 disables")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "Skip automatic database migrations on startup")
	envFlag(cmd, "port", "PORT")
	envFlag(cmd, "reindex-interval", "REINDEX_INTERVAL")

	return cmd
}

func runServe(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	ingestHandler := handlers.NewIngestHandler(app.Ingest, app.Sources.Confined())
	var validator middleware.TokenValidator
	if cfg.APIToken != "" {
		validator = middleware.StaticToken{Token: cfg.APIToken}
	} else {
		logger.Warn("RAG_API_TOKEN not set, API is unauthenticated and recreate is disabled")
		ingestHandler.DenyRecreate()
	}

	routerCfg := server.RouterConfig{
		TokenValidator: validator,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         logger,
		Index:          app.Admin,
		Collection:     cfg.Collection,
		QueryHandler:   handlers.NewQueryHandler(app.Query),
		IngestHandler:  ingestHandler,
		StatsHandler:   handlers.NewStatsHandler(app.Admin),
	}
	if app.QueryLogs != nil {
		routerCfg.QueryLogHandler = handlers.NewQueryLogHandler(app.QueryLogs)
	}
	router := server.NewRouter(routerCfg)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var reindexWorker *jobs.Worker
	if cfg.ReindexInterval > 0 {
		src, err := app.Sources.Open(ctx, "")
		if err != nil {
			return err
		}
		reindexWorker = jobs.NewWorker(jobs.NewReindexProcessor(app.Ingest, src, logger), cfg.ReindexInterval, logger)
		go reindexWorker.Start(workerCtx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port), zap.String("backend", cfg.IndexBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if reindexWorker != nil {
		reindexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
