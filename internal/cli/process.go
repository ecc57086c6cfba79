package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/spf13/cobra"
)

// ProcessCmd returns the process command
func ProcessCmd(opts ...AppOption) *cobra.Command {
	var (
		folder   string
		recreate bool
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Ingest documents into the vector index",
		Long: `Extracts, chunks, embeds and indexes every supported document in a folder
(.txt .md .xml .docx .pdf .png .jpg .jpeg). The folder may be a local path or
s3://bucket/prefix. A failing document is reported and never stops the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			configure := func(cfg *config.Config) {
				if workers > 0 {
					cfg.IngestWorkers = workers
				}
			}
			return withApp(ctx, "", configure, opts, func(ctx context.Context, app *App) error {
				src, err := app.Sources.Open(ctx, folder)
				if err != nil {
					return err
				}

				summary, err := app.Ingest.Run(ctx, src, service.IngestOptions{Recreate: recreate})
				if err != nil {
					return err
				}

				if outputJSON(cmd) {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Document folder or s3://bucket/prefix")
	cmd.Flags().BoolVarP(&recreate, "recreate", "r", false, "Drop and rebuild the collection before ingesting")
	cmd.Flags().IntVar(&workers, "workers", 0, "Documents processed in parallel")
	envFlag(cmd, "folder", "DATA_DIR")
	envFlag(cmd, "workers", "INGEST_WORKERS")

	return cmd
}
