package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// ResetCmd returns the reset command
func ResetCmd(opts ...AppOption) *cobra.Command {
	var (
		yes  bool
		drop bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed record",
		Long:  "Deletes all records from the collection, or drops the collection with --drop. Asks for confirmation unless --yes is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "", nil, opts, func(ctx context.Context, app *App) error {
				action := "delete all records from"
				if drop {
					action = "drop"
				}
				if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("This will %s collection %q. Type 'yes' to continue: ", action, app.Config.Collection)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}

				if err := app.Admin.Reset(ctx, drop); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Collection %q reset.", app.Config.Collection)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&drop, "drop", false, "Drop the collection instead of emptying it")

	return cmd
}

// confirm accepts only an exact "yes".
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
