package cli

import (
	"fmt"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies the embedded schema migrations to RAG_DATABASE_URL. Only needed for the pgvector backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup("")
			if err != nil {
				return err
			}
			defer rt.shutdown()

			if rt.cfg.IndexBackend == config.IndexBackendMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "Index backend is memory, nothing to migrate.")
				return nil
			}

			status, err := database.Migrate(rt.cfg.DatabaseURL, rt.logger)
			if err != nil {
				return err
			}
			if status.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (version %d).\n", status.Version)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Database schema up to date (version %d).\n", status.Version)
			}
			return nil
		},
	}
}
