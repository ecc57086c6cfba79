package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/source"
	"github.com/cloo-solutions/docrag/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TextExtractor returns the plain text of a local file of the given type.
type TextExtractor interface {
	Extract(ctx context.Context, path string, t domain.DocumentType) (string, error)
}

// DocumentEmbedder embeds chunk texts with per-item failures.
type DocumentEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) (*EmbeddingResult, error)
	Dimensions() int
}

// IngestConfig holds the collection and the ingestion limits.
type IngestConfig struct {
	Collection      string
	Distance        domain.Distance
	Workers         int
	UpsertBatchSize int
	DocumentTimeout time.Duration
}

// DefaultIngestConfig provides sane defaults for ingestion.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Collection:      "rag_chunks",
		Distance:        domain.DistanceCosine,
		Workers:         4,
		UpsertBatchSize: 64,
		DocumentTimeout: 5 * time.Minute,
	}
}

// cleanupTimeout bounds stale-record removal once a document has given up.
const cleanupTimeout = 10 * time.Second

// IngestOptions are per-run switches.
type IngestOptions struct {
	// Recreate drops and rebuilds the collection before processing.
	Recreate bool
}

// DocumentStatus is the outcome of one file.
type DocumentStatus string

const (
	DocumentProcessed DocumentStatus = "processed"
	// DocumentPartial means some chunks were indexed and some failed embedding.
	DocumentPartial DocumentStatus = "partial"
	DocumentSkipped DocumentStatus = "skipped"
	DocumentFailed  DocumentStatus = "failed"
)

// DocumentResult records what happened to one file.
type DocumentResult struct {
	DocumentID string              `json:"document_id"`
	Type       domain.DocumentType `json:"type"`
	Status     DocumentStatus      `json:"status"`
	Chunks     int                 `json:"chunks"`
	Indexed    int                 `json:"indexed"`
	Failed     int                 `json:"failed"`
	Truncated  int                 `json:"truncated,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Duration   time.Duration       `json:"duration_ns"`
}

// IngestSummary aggregates one ingestion run.
type IngestSummary struct {
	Collection    string           `json:"collection"`
	Source        string           `json:"source"`
	Recreated     bool             `json:"recreated"`
	TotalFiles    int              `json:"total_files"`
	Processed     int              `json:"processed"`
	Partial       int              `json:"partial"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	ChunksCreated int              `json:"chunks_created"`
	ChunksIndexed int              `json:"chunks_indexed"`
	ChunksFailed  int              `json:"chunks_failed"`
	Files         []DocumentResult `json:"files"`
	Duration      time.Duration    `json:"duration_ns"`
}

// SuccessRate is the percentage of files fully processed.
func (s *IngestSummary) SuccessRate() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.TotalFiles) * 100
}

func (s *IngestSummary) add(r DocumentResult) {
	switch r.Status {
	case DocumentProcessed:
		s.Processed++
	case DocumentPartial:
		s.Partial++
	case DocumentSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.ChunksCreated += r.Chunks
	s.ChunksIndexed += r.Indexed
	s.ChunksFailed += r.Failed
	s.Files = append(s.Files, r)
}

// IngestService walks a source and indexes every supported document:
// extract, chunk, embed, upsert. A failing document is recorded in the
// summary and never stops the run.
type IngestService struct {
	extractor TextExtractor
	chunker   *Chunker
	embedder  DocumentEmbedder
	index     IndexWriter
	cfg       IngestConfig
	logger    *zap.Logger

	// one run at a time per service
	mu sync.Mutex
}

// NewIngestService creates a new IngestService instance
func NewIngestService(
	extractor TextExtractor,
	chunker *Chunker,
	embedder DocumentEmbedder,
	index IndexWriter,
	cfg IngestConfig,
	logger *zap.Logger,
) *IngestService {
	defaults := DefaultIngestConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = defaults.UpsertBatchSize
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = defaults.DocumentTimeout
	}
	if cfg.Distance == "" {
		cfg.Distance = defaults.Distance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		cfg:       cfg,
		logger:    logger,
	}
}

// CollectionSpec is the schema the run writes into, sized by the embedding model.
func (s *IngestService) CollectionSpec() domain.CollectionSpec {
	return domain.CollectionSpec{
		Name:      s.cfg.Collection,
		Dimension: s.embedder.Dimensions(),
		Distance:  s.cfg.Distance,
	}
}

// Run ingests every document src lists. The returned error is non-nil only
// when the run could not start: the collection could not be prepared or the
// source could not be listed.
func (s *IngestService) Run(ctx context.Context, src source.Source, opts IngestOptions) (*IngestSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "IngestService.Run", telemetry.SpanAttributes{
		Collection: s.cfg.Collection,
		Operation:  "ingest",
	})
	defer span.End()

	started := time.Now()
	spec := s.CollectionSpec()

	if opts.Recreate {
		s.logger.Info("recreating collection", zap.String("collection", spec.Name))
		if err := s.index.Recreate(ctx, spec); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("failed to recreate collection: %w", err)
		}
	} else if err := s.index.EnsureCollection(ctx, spec); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to prepare collection: %w", err)
	}

	items, err := src.List(ctx)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to list documents in %s: %w", src, err)
	}
	s.logger.Info("ingestion started",
		zap.String("source", src.String()),
		zap.String("collection", spec.Name),
		zap.Int("documents", len(items)),
		zap.Int("workers", s.cfg.Workers))

	results := make([]DocumentResult, len(items))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.processDocument(ctx, src, item)
			return nil
		})
	}
	_ = g.Wait()

	summary := &IngestSummary{
		Collection: spec.Name,
		Source:     src.String(),
		Recreated:  opts.Recreate,
		TotalFiles: len(items),
		Files:      make([]DocumentResult, 0, len(items)),
	}
	for _, r := range results {
		summary.add(r)
	}
	sort.SliceStable(summary.Files, func(i, j int) bool {
		return summary.Files[i].DocumentID < summary.Files[j].DocumentID
	})
	summary.Duration = time.Since(started)

	span.SetData("documents", summary.TotalFiles)
	span.SetData("chunks_indexed", summary.ChunksIndexed)
	s.logger.Info("ingestion finished",
		zap.Int("documents", summary.TotalFiles),
		zap.Int("processed", summary.Processed),
		zap.Int("partial", summary.Partial),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("chunks_created", summary.ChunksCreated),
		zap.Int("chunks_indexed", summary.ChunksIndexed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

func (s *IngestService) processDocument(ctx context.Context, src source.Source, item source.Item) DocumentResult {
	started := time.Now()
	res := DocumentResult{DocumentID: item.ID, Type: item.Type}
	logger := s.logger.With(zap.String("document_id", item.ID))

	finish := func(status DocumentStatus, reason string) DocumentResult {
		res.Status = status
		res.Reason = reason
		res.Duration = time.Since(started)
		telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("%s %s", item.ID, status))
		switch status {
		case DocumentProcessed:
			logger.Info("document indexed", zap.Int("chunks", res.Chunks), zap.Duration("duration", res.Duration))
		case DocumentSkipped:
			logger.Info("document skipped", zap.String("reason", reason))
		default:
			logger.Warn("document not fully indexed",
				zap.String("status", string(status)),
				zap.Int("chunks", res.Chunks),
				zap.Int("indexed", res.Indexed),
				zap.String("reason", reason))
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		return finish(DocumentFailed, "cancelled before processing")
	}

	docCtx, cancel := context.WithTimeout(ctx, s.cfg.DocumentTimeout)
	defer cancel()

	docCtx, span := telemetry.StartSpan(docCtx, "IngestService.processDocument", telemetry.SpanAttributes{
		Collection: s.cfg.Collection,
		DocumentID: item.ID,
		Operation:  "ingest_document",
	})
	defer span.End()

	path, cleanup, err := src.Fetch(docCtx, item)
	if err != nil {
		span.SetError(err)
		return finish(DocumentFailed, fmt.Sprintf("fetch: %v", err))
	}
	defer cleanup()

	text, err := s.extractor.Extract(docCtx, path, item.Type)
	if err != nil {
		// a document without text keeps no records
		s.dropDocument(ctx, logger, item.ID)
		if errors.Is(err, domain.ErrUnsupportedType) {
			return finish(DocumentSkipped, err.Error())
		}
		span.SetError(err)
		return finish(DocumentFailed, err.Error())
	}

	doc := domain.Document{ID: item.ID, Type: item.Type, Text: text}
	chunks := s.chunker.Chunk(doc)
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		s.dropDocument(ctx, logger, doc.ID)
		return finish(DocumentSkipped, domain.ErrEmptyText.Message)
	}

	// a shorter re-ingest must not leave the old tail behind
	if err := s.index.DeleteDocumentTail(docCtx, s.cfg.Collection, doc.ID, len(chunks)); err != nil {
		span.SetError(err)
		res.Failed = len(chunks)
		return finish(DocumentFailed, err.Error())
	}

	var (
		firstErr error
		stale    []string
	)
	for start := 0; start < len(chunks); start += s.cfg.UpsertBatchSize {
		end := min(start+s.cfg.UpsertBatchSize, len(chunks))
		batch := chunks[start:end]

		indexed, failedIDs, err := s.indexBatch(docCtx, batch, &res)
		res.Indexed += indexed
		res.Failed += len(failedIDs)
		stale = append(stale, failedIDs...)
		if firstErr == nil && err != nil {
			firstErr = err
		}
		if err != nil && stopsDocument(docCtx, err) {
			stale = append(stale, chunkIDs(chunks[end:])...)
			res.Failed += len(chunks) - end
			break
		}
	}

	// failed positions keep no text from an earlier run
	if len(stale) > 0 {
		s.dropChunks(ctx, logger, stale)
	}

	if res.Indexed == res.Chunks {
		return finish(DocumentProcessed, "")
	}
	if firstErr != nil {
		span.SetError(firstErr)
	}
	if res.Indexed > 0 {
		return finish(DocumentPartial, reasonFor(firstErr, res))
	}
	return finish(DocumentFailed, reasonFor(firstErr, res))
}

// indexBatch embeds and upserts one batch of chunks. failedIDs lists the
// chunks that were not written; err is the first failure seen in the batch.
func (s *IngestService) indexBatch(ctx context.Context, batch []domain.Chunk, res *DocumentResult) (indexed int, failedIDs []string, err error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	emb, embedErr := s.embedder.EmbedTexts(ctx, texts)
	if emb == nil {
		return 0, chunkIDs(batch), embedErr
	}
	res.Truncated += emb.Truncated

	records := make([]domain.IndexedRecord, 0, len(batch))
	for i, v := range emb.Vectors {
		if v != nil {
			records = append(records, domain.NewIndexedRecord(batch[i], v))
		} else {
			failedIDs = append(failedIDs, batch[i].ID)
		}
	}
	err = embedErr
	if err == nil && len(emb.Failures) > 0 {
		err = emb.Failures[0].Err
	}

	if len(records) == 0 {
		return 0, failedIDs, err
	}
	if upsertErr := s.index.Upsert(ctx, s.cfg.Collection, records); upsertErr != nil {
		return 0, chunkIDs(batch), upsertErr
	}
	return len(records), failedIDs, err
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

// dropDocument removes every record of a document. Cleanup runs past the
// document deadline.
func (s *IngestService) dropDocument(ctx context.Context, logger *zap.Logger, documentID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.index.DeleteDocumentTail(cleanupCtx, s.cfg.Collection, documentID, 0); err != nil {
		logger.Warn("failed to remove stale records", zap.Error(err))
	}
}

func (s *IngestService) dropChunks(ctx context.Context, logger *zap.Logger, ids []string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.index.DeleteChunks(cleanupCtx, s.cfg.Collection, ids); err != nil {
		logger.Warn("failed to remove stale chunks", zap.Int("chunks", len(ids)), zap.Error(err))
	}
}

// stopsDocument reports whether the remaining batches of a document should be abandoned.
func stopsDocument(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, domain.ErrEmbeddingUnavailable) ||
		errors.Is(err, domain.ErrIndexUnavailable) ||
		errors.Is(err, domain.ErrSchemaMismatch) ||
		errors.Is(err, domain.ErrCollectionNotFound) ||
		!errors.Is(err, domain.ErrEmbedding)
}

func reasonFor(err error, res DocumentResult) string {
	if err == nil {
		return fmt.Sprintf("%d of %d chunks failed", res.Failed, res.Chunks)
	}
	return fmt.Sprintf("%d of %d chunks failed: %v", res.Failed, res.Chunks, err)
}
