package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// StatsCmd returns the stats command
func StatsCmd(opts ...AppOption) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Long:  "Prints the collection name, record count, vector schema, chunking settings and model names.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "", nil, opts, func(ctx context.Context, app *App) error {
				stats, err := app.Admin.Stats(ctx)
				if err != nil {
					return err
				}
				if outputJSON(cmd) {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}
