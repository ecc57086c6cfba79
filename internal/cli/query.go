package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/spf13/cobra"
)

const replHelp = `Ask a question about the indexed documents, or:
  stats           show collection statistics
  help            show this help
  quit, exit, q   leave`

type answerer interface {
	Query(ctx context.Context, question string, opts service.QueryOptions) (*service.Answer, error)
}

type statsReporter interface {
	Stats(ctx context.Context) (*service.Stats, error)
}

// QueryCmd returns the query command
func QueryCmd(opts ...AppOption) *cobra.Command {
	var (
		question    string
		topK        int
		threshold   float64
		showContext bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask questions about the indexed documents",
		Long: `Answers a single question with -q, or starts an interactive session
where every line is a question. Answers cite the documents they were built from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			queryOpts := service.QueryOptions{TopK: topK}
			if cmd.Flags().Changed("threshold") {
				queryOpts.Threshold = &threshold
			}

			return withApp(ctx, "", nil, opts, func(ctx context.Context, app *App) error {
				if question != "" {
					answer, err := app.Query.Query(ctx, question, queryOpts)
					if err != nil {
						return err
					}
					if outputJSON(cmd) {
						return writeJSON(cmd.OutOrStdout(), answer)
					}
					printAnswer(cmd.OutOrStdout(), answer, showContext)
					return nil
				}

				r := &repl{
					in:          cmd.InOrStdin(),
					out:         cmd.OutOrStdout(),
					engine:      app.Query,
					stats:       app.Admin,
					cfg:         app.Config,
					opts:        queryOpts,
					showContext: showContext,
				}
				return r.run(ctx)
			})
		},
	}

	cmd.Flags().StringVarP(&question, "query", "q", "", "Answer one question and exit")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Passages to retrieve")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the passages the answer was built from")
	envFlag(cmd, "top-k", "TOP_K")
	envFlag(cmd, "threshold", "SIMILARITY_THRESHOLD")

	return cmd
}

// repl reads one question per line until quit or end of input. A failed
// question prints its error and hint and the session continues.
type repl struct {
	in          io.Reader
	out         io.Writer
	engine      answerer
	stats       statsReporter
	cfg         *config.Config
	opts        service.QueryOptions
	showContext bool
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, titleStyle.Render("docrag")+mutedStyle.Render(" - type `help` for commands"))

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help":
			fmt.Fprintln(r.out, replHelp)
			continue
		case "stats":
			stats, err := r.stats.Stats(ctx)
			if err != nil {
				printError(r.out, err, r.cfg)
				continue
			}
			printStats(r.out, stats)
			continue
		}

		answer, err := r.engine.Query(ctx, line, r.opts)
		if err != nil {
			printError(r.out, err, r.cfg)
			continue
		}
		printAnswer(r.out, answer, r.showContext)
		fmt.Fprintln(r.out)
	}
}
