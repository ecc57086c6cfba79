package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/service"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))
)

const maxReasonWidth = 60

func statusStyle(status service.DocumentStatus) lipgloss.Style {
	switch status {
	case service.DocumentProcessed:
		return successStyle
	case service.DocumentPartial, service.DocumentSkipped:
		return warningStyle
	default:
		return errorStyle
	}
}

// printSummary renders the per-file table followed by the run totals.
func printSummary(w io.Writer, s *service.IngestSummary) {
	fmt.Fprintln(w, titleStyle.Render("Processing summary"))
	fmt.Fprintf(w, "Source: %s  Collection: %s", s.Source, s.Collection)
	if s.Recreated {
		fmt.Fprint(w, "  (recreated)")
	}
	fmt.Fprintln(w)

	if len(s.Files) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No supported documents found. Supported: "+strings.Join(domain.SupportedExtensions(), " ")))
		return
	}

	rows := make([][]string, 0, len(s.Files))
	for _, f := range s.Files {
		rows = append(rows, []string{
			f.DocumentID,
			string(f.Status),
			strconv.Itoa(f.Chunks),
			strconv.Itoa(f.Indexed),
			truncate(f.Reason, maxReasonWidth),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("FILE", "STATUS", "CHUNKS", "INDEXED", "REASON").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			if col == 1 && row >= 0 && row < len(s.Files) {
				return statusStyle(s.Files[row].Status).Padding(0, 1)
			}
			return style
		})
	fmt.Fprintln(w, t.Render())

	fmt.Fprintf(w, "Files: %d  processed: %d  partial: %d  skipped: %d  failed: %d\n",
		s.TotalFiles, s.Processed, s.Partial, s.Skipped, s.Failed)
	fmt.Fprintf(w, "Chunks: %d created, %d indexed, %d failed\n", s.ChunksCreated, s.ChunksIndexed, s.ChunksFailed)
	fmt.Fprintf(w, "Success rate: %.1f%%  Duration: %s\n", s.SuccessRate(), s.Duration.Round(time.Millisecond))
}

// printAnswer renders an answer with its sources. showContext adds the passages.
func printAnswer(w io.Writer, a *service.Answer, showContext bool) {
	switch a.State {
	case service.AnswerStateNoContext:
		fmt.Fprintln(w, warningStyle.Render(a.Text))
		return
	case service.AnswerStateUngrounded:
		fmt.Fprintln(w, warningStyle.Render("[ungrounded] no indexed passage matched; answer is from the model alone"))
	}

	fmt.Fprintln(w, a.Text)

	if len(a.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("Sources: "+strings.Join(a.Citations, ", ")))
	}

	if showContext {
		for _, p := range a.Passages {
			fmt.Fprintln(w)
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("[%d] %s #%d (score %.3f)", p.Rank, p.DocumentID, p.Position, p.Score)))
			fmt.Fprintln(w, p.Text)
		}
	}

	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d passages retrieved, %s", a.Retrieved, a.Timing.Total.Round(time.Millisecond))))
}

func printStats(w io.Writer, s *service.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Collection"))
	fmt.Fprintf(w, "  name:       %s\n", s.Collection)
	if !s.Exists {
		fmt.Fprintln(w, warningStyle.Render("  not created yet, run `docrag process` first"))
	} else {
		fmt.Fprintf(w, "  records:    %d\n", s.Records)
	}
	fmt.Fprintf(w, "  dimension:  %d\n", s.Dimension)
	fmt.Fprintf(w, "  distance:   %s\n", s.Distance)
	fmt.Fprintln(w, titleStyle.Render("Chunking"))
	fmt.Fprintf(w, "  size:       %d words\n", s.ChunkSize)
	fmt.Fprintf(w, "  overlap:    %d words\n", s.ChunkOverlap)
	fmt.Fprintf(w, "  mode:       %s\n", s.ChunkMode)
	fmt.Fprintln(w, titleStyle.Render("Models"))
	fmt.Fprintf(w, "  embedding:  %s\n", s.EmbeddingModel)
	fmt.Fprintf(w, "  generation: %s\n", s.GenerationModel)
}

// hintFor names the likely fix for a failure, one per error kind.
func hintFor(err error, cfg *config.Config) string {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return "Type a question, or `help` for commands."
	case errors.Is(err, domain.ErrInvalidConfig):
		return "Check the RAG_* environment variables or your .env file."
	case errors.Is(err, domain.ErrCollectionNotFound):
		return "Nothing is indexed yet. Run `docrag process` first."
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "The collection was built with a different embedding model. Run `docrag process --recreate`."
	case errors.Is(err, domain.ErrIndexUnavailable):
		return fmt.Sprintf("The vector index is not reachable. Is the database running (backend %s)?", cfg.IndexBackend)
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return fmt.Sprintf("The embedding server is not reachable. Is it running at %s?", cfg.EmbeddingBaseURL)
	case errors.Is(err, domain.ErrEmbedding):
		return fmt.Sprintf("The embedding model %s rejected the input.", cfg.EmbeddingModel)
	case errors.Is(err, domain.ErrGeneration):
		return fmt.Sprintf("The language model failed. Is %s loaded at %s?", cfg.LLMModel, cfg.LLMBaseURL)
	default:
		return ""
	}
}

func printError(w io.Writer, err error, cfg *config.Config) {
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
	if hint := hintFor(err, cfg); hint != "" {
		fmt.Fprintln(w, mutedStyle.Render("Hint: "+hint))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
