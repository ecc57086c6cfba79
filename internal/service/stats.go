package service

import (
	"context"
	"errors"

	"github.com/cloo-solutions/docrag/internal/domain"
	"go.uber.org/zap"
)

// Stats describes the configured collection and the pipeline settings that
// produced it.
type Stats struct {
	Collection      string          `json:"collection"`
	Exists          bool            `json:"exists"`
	Records         int64           `json:"records"`
	Dimension       int             `json:"dimension"`
	Distance        domain.Distance `json:"distance"`
	ChunkSize       int             `json:"chunk_size"`
	ChunkOverlap    int             `json:"chunk_overlap"`
	ChunkMode       BoundaryMode    `json:"chunk_mode"`
	EmbeddingModel  string          `json:"embedding_model"`
	GenerationModel string          `json:"generation_model"`
}

// AdminService answers stats and reset requests against one collection.
type AdminService struct {
	index           IndexAdmin
	spec            domain.CollectionSpec
	chunk           ChunkConfig
	embeddingModel  string
	generationModel string
	logger          *zap.Logger
}

func NewAdminService(index IndexAdmin, spec domain.CollectionSpec, chunk ChunkConfig, embeddingModel, generationModel string, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		index:           index,
		spec:            spec,
		chunk:           chunk,
		embeddingModel:  embeddingModel,
		generationModel: generationModel,
		logger:          logger.Named("admin"),
	}
}

// Stats reports a missing collection as Exists=false rather than an error.
func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Collection:      s.spec.Name,
		Dimension:       s.spec.Dimension,
		Distance:        s.spec.Distance,
		ChunkSize:       s.chunk.Size,
		ChunkOverlap:    s.chunk.Overlap,
		ChunkMode:       s.chunk.Mode,
		EmbeddingModel:  s.embeddingModel,
		GenerationModel: s.generationModel,
	}

	info, err := s.index.Info(ctx, s.spec.Name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}

	stats.Exists = true
	stats.Records = info.Count
	stats.Dimension = info.Dimension
	stats.Distance = info.Distance
	return stats, nil
}

// Reset removes every record, or the whole collection when drop is set.
func (s *AdminService) Reset(ctx context.Context, drop bool) error {
	if drop {
		if err := s.index.Drop(ctx, s.spec.Name); err != nil {
			return err
		}
		s.logger.Info("collection dropped", zap.String("collection", s.spec.Name))
		return nil
	}
	if err := s.index.DeleteAll(ctx, s.spec.Name); err != nil {
		return err
	}
	s.logger.Info("collection cleared", zap.String("collection", s.spec.Name))
	return nil
}

// Ping checks the index backend is reachable.
func (s *AdminService) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}
