package cli

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/database"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/embedcache"
	"github.com/cloo-solutions/docrag/internal/extract"
	"github.com/cloo-solutions/docrag/internal/openai"
	"github.com/cloo-solutions/docrag/internal/repository"
	"github.com/cloo-solutions/docrag/internal/service"
	"go.uber.org/zap"
)

// App holds the components every command is built from.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Index   service.VectorIndex
	Ingest  *service.IngestService
	Query   *service.QueryEngine
	Admin   *service.AdminService
	Sources *SourceOpener
	// QueryLogs is nil for backends that keep no query logs.
	QueryLogs *service.QueryLogService

	closers []func()
}

type appOptions struct {
	index       service.VectorIndex
	runner      extract.CommandRunner
	skipMigrate bool
}

// AppOption customizes NewApp.
type AppOption func(*appOptions)

// WithIndex uses the given index instead of the configured backend.
func WithIndex(index service.VectorIndex) AppOption {
	return func(o *appOptions) { o.index = index }
}

// WithCommandRunner replaces the runner used for pdftotext and tesseract.
func WithCommandRunner(runner extract.CommandRunner) AppOption {
	return func(o *appOptions) { o.runner = runner }
}

// WithoutMigrations skips applying migrations on connect.
func WithoutMigrations() AppOption {
	return func(o *appOptions) { o.skipMigrate = true }
}

// NewApp builds the pipeline from configuration. The caller must Close it.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if o.runner == nil {
		o.runner = extract.ExecRunner{}
	}

	app := &App{Config: cfg, Logger: logger}

	var queryLogs *repository.QueryLogRepository
	index := o.index
	if index == nil {
		switch cfg.IndexBackend {
		case config.IndexBackendMemory:
			index = repository.NewMemoryIndex()
		default:
			pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
			if err != nil {
				return nil, domain.Wrap(domain.ErrIndexUnavailable, err)
			}
			app.closers = append(app.closers, pool.Close)
			if !o.skipMigrate {
				if _, err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
					app.Close()
					return nil, fmt.Errorf("failed to run migrations: %w", err)
				}
			}
			index = repository.NewPgVectorIndex(pool, logger)
			queryLogs = repository.NewQueryLogRepository(pool)
		}
	}
	app.Index = index

	embeddingClient := openai.NewClientWithConfig(openai.Config{
		BaseURL:             cfg.EmbeddingBaseURL,
		APIKey:              cfg.EmbeddingAPIKey,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	embeddingCfg := service.EmbeddingConfig{
		BatchSize:      cfg.EmbeddingBatchSize,
		MaxInputTokens: cfg.EmbeddingMaxInputTokens,
		Oversize:       service.OversizePolicy(cfg.EmbeddingOversize),
	}
	documentEmbedder := service.NewEmbeddingService(embeddingClient, embeddingCfg, logger)

	var queryClient service.EmbeddingClient = embeddingClient
	if cfg.EmbeddingCacheSize > 0 {
		queryClient = embedcache.WrapLRU(embeddingClient, cfg.EmbeddingCacheSize, cfg.EmbeddingCacheTTL, logger)
	}
	queryEmbedder := service.NewEmbeddingService(queryClient, embeddingCfg, logger)

	generator := openai.NewGenerator(openai.GeneratorConfig{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	})

	chunkCfg := service.ChunkConfig{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
		Mode:    service.BoundaryMode(cfg.ChunkMode),
	}
	chunker, err := service.NewChunker(chunkCfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	extractors := extract.NewRegistry(extract.Config{
		OCREnabled:   cfg.OCREnabled,
		OCRLanguages: cfg.OCRLanguages,
		PDFToTextBin: cfg.PDFToTextBin,
		PDFToPPMBin:  cfg.PDFToPPMBin,
		TesseractBin: cfg.TesseractBin,
	}, o.runner, logger)

	spec := cfg.CollectionSpec()
	app.Ingest = service.NewIngestService(extractors, chunker, documentEmbedder, index, service.IngestConfig{
		Collection:      spec.Name,
		Distance:        spec.Distance,
		Workers:         cfg.IngestWorkers,
		UpsertBatchSize: cfg.UpsertBatchSize,
		DocumentTimeout: cfg.DocumentTimeout,
	}, logger)

	app.Query = service.NewQueryEngine(queryEmbedder, index, generator, service.QueryConfig{
		Collection:          spec.Name,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxContextChars:     cfg.MaxContextChars,
		AllowUngrounded:     cfg.AllowUngrounded,
		Language:            service.PromptLanguage(cfg.PromptLanguage),
		Timeout:             cfg.QueryTimeout,
	}, logger)
	if queryLogs != nil {
		app.Query.WithQueryLog(queryLogs)
		app.QueryLogs = service.NewQueryLogService(queryLogs, spec.Name)
	}

	app.Admin = service.NewAdminService(index, spec, chunkCfg, embeddingClient.ModelName(), generator.ModelName(), logger)
	app.Sources = NewSourceOpener(cfg, logger)

	return app, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
