// Package source discovers documents for ingestion.
package source

import (
	"context"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// Item is one discoverable document.
type Item struct {
	// ID is the path relative to the source root, slash-separated, or the object key.
	ID   string
	Type domain.DocumentType
	Size int64
}

// Source lists documents and materializes them as local files for extraction.
type Source interface {
	List(ctx context.Context) ([]Item, error)
	// Fetch returns a local path for the item and a cleanup func that must be called when done.
	Fetch(ctx context.Context, item Item) (string, func(), error)
	String() string
}

// ParseS3URI splits s3://bucket/prefix. ok is false for anything else.
func ParseS3URI(uri string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found || rest == "" {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}

func noop() {}
