package jobs

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/cloo-solutions/docrag/internal/source"
	"github.com/cloo-solutions/docrag/internal/telemetry"
	"go.uber.org/zap"
)

// IngestRunner runs one ingestion pass over a source.
type IngestRunner interface {
	Run(ctx context.Context, src source.Source, opts service.IngestOptions) (*service.IngestSummary, error)
}

// ReindexProcessor re-ingests a source incrementally on every tick, so edited
// documents are refreshed without a full rebuild.
type ReindexProcessor struct {
	runner IngestRunner
	src    source.Source
	logger *zap.Logger
}

func NewReindexProcessor(runner IngestRunner, src source.Source, logger *zap.Logger) *ReindexProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReindexProcessor{runner: runner, src: src, logger: logger.Named("reindex")}
}

// ProcessJobs runs one incremental pass. Per-document failures are logged, not returned.
func (p *ReindexProcessor) ProcessJobs(ctx context.Context) error {
	summary, err := p.runner.Run(ctx, p.src, service.IngestOptions{})
	if err != nil {
		telemetry.CaptureError(ctx, err)
		return fmt.Errorf("reindex %s: %w", p.src, err)
	}

	p.logger.Info("reindex complete",
		zap.String("source", p.src.String()),
		zap.Int("files", summary.TotalFiles),
		zap.Int("processed", summary.Processed),
		zap.Int("partial", summary.Partial),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("chunks_indexed", summary.ChunksIndexed),
		zap.Duration("duration", summary.Duration),
	)
	for _, f := range summary.Files {
		if f.Status == service.DocumentFailed {
			p.logger.Warn("document failed", zap.String("document", f.DocumentID), zap.String("reason", f.Reason))
		}
	}
	return nil
}
