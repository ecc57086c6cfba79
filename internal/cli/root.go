package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/logging"
	"github.com/cloo-solutions/docrag/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// NewRootCmd builds the docrag command tree. opts are passed to every NewApp call.
func NewRootCmd(opts ...AppOption) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docrag",
		Short: "Document question answering over a local vector index",
		Long: `docrag ingests a folder of documents into a vector index and answers
questions from them with a local language model.

Configuration is read from RAG_* environment variables and .env, e.g.:
  RAG_DATABASE_URL        pgvector connection string
  RAG_INDEX_BACKEND       pgvector (default) or memory
  RAG_EMBEDDING_BASE_URL  OpenAI-compatible embeddings endpoint
  RAG_LLM_BASE_URL        OpenAI-compatible chat endpoint
  RAG_DATA_DIR            default document folder`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(ProcessCmd(opts...))
	rootCmd.AddCommand(QueryCmd(opts...))
	rootCmd.AddCommand(StatsCmd(opts...))
	rootCmd.AddCommand(ResetCmd(opts...))
	rootCmd.AddCommand(ServeCmd(opts...))
	rootCmd.AddCommand(MigrateCmd())

	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(rootCmd *cobra.Command) int {
	if handled, err := CheckHelpJSON(rootCmd, os.Args[1:], rootCmd.OutOrStdout()); handled {
		if err != nil {
			fmt.Fprintln(rootCmd.ErrOrStderr(), err)
			return 1
		}
		return 0
	}
	if err := rootCmd.Execute(); err != nil {
		cfg, loadErr := config.Load()
		if loadErr != nil {
			cfg = &config.Config{}
		}
		printError(rootCmd.ErrOrStderr(), err, cfg)
		return 1
	}
	return 0
}

// runtime is the configuration, logger and telemetry shared by one command run.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown func()
}

func setup(logFormat string) (*runtime, error) {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		return nil, err
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	flushTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		flushTelemetry = func() {}
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		shutdown: func() {
			flushTelemetry()
			_ = logger.Sync()
		},
	}, nil
}

// withApp loads configuration, builds the App and runs fn with it.
func withApp(ctx context.Context, logFormat string, configure func(*config.Config), opts []AppOption, fn func(context.Context, *App) error) error {
	rt, err := setup(logFormat)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if configure != nil {
		configure(rt.cfg)
	}

	app, err := NewApp(ctx, rt.cfg, rt.logger, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func outputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
