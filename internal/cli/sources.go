package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/source"
	"github.com/cloo-solutions/docrag/internal/storage"
	"go.uber.org/zap"
)

// SourceOpener resolves a folder argument into a document source: a local
// directory or an s3://bucket/prefix URI.
type SourceOpener struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewSourceOpener(cfg *config.Config, logger *zap.Logger) *SourceOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceOpener{cfg: cfg, logger: logger}
}

// Open falls back to the configured data directory when folder is empty.
func (o *SourceOpener) Open(ctx context.Context, folder string) (source.Source, error) {
	if folder == "" {
		folder = o.cfg.DataDir
	}
	if !config.IsS3URI(folder) {
		return source.NewLocal(folder), nil
	}

	bucket, prefix, ok := source.ParseS3URI(folder)
	if !ok {
		return nil, domain.Wrapf(domain.ErrInvalidConfig, "invalid s3 uri %q, expected s3://bucket/prefix", folder)
	}
	if !o.cfg.HasS3() {
		return nil, domain.Wrapf(domain.ErrInvalidConfig, "s3 credentials not configured (RAG_S3_ACCESS_KEY_ID, RAG_S3_SECRET_ACCESS_KEY)")
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        o.cfg.S3Endpoint,
		Region:          o.cfg.S3Region,
		AccessKeyID:     o.cfg.S3AccessKey,
		SecretAccessKey: o.cfg.S3SecretKey,
		Bucket:          bucket,
		UsePathStyle:    o.cfg.S3Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	o.logger.Debug("using s3 source", zap.String("bucket", bucket), zap.String("prefix", prefix))
	return source.NewS3(client, prefix), nil
}

// ConfinedOpener opens folders named by API callers. Local folders resolve
// against the data directory and may not leave it, symlinks included.
type ConfinedOpener struct {
	opener *SourceOpener
}

// Confined returns the opener used by the HTTP ingest endpoint.
func (o *SourceOpener) Confined() *ConfinedOpener {
	return &ConfinedOpener{opener: o}
}

func (c *ConfinedOpener) Open(ctx context.Context, folder string) (source.Source, error) {
	if folder == "" || config.IsS3URI(folder) {
		return c.opener.Open(ctx, folder)
	}
	path, err := resolveWithin(c.opener.cfg.DataDir, folder)
	if err != nil {
		return nil, err
	}
	c.opener.logger.Debug("using local source", zap.String("path", path))
	return source.NewLocal(path), nil
}

// resolveWithin resolves folder (relative folders are taken from root) and
// rejects any result that is not root or below it.
func resolveWithin(root, folder string) (string, error) {
	base, err := realPath(root)
	if err != nil {
		return "", domain.Wrapf(domain.ErrInvalidConfig, "data directory %q: %v", root, err)
	}
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(base, folder)
	}
	path, err := realPath(folder)
	if err != nil {
		return "", domain.Wrapf(domain.ErrFolderDenied, "folder %q cannot be resolved", folder)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.Wrapf(domain.ErrFolderDenied, "folder %q", folder)
	}
	return path, nil
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
