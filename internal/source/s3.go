package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/storage"
)

// ObjectStore is the part of storage.S3Client the S3 source uses.
type ObjectStore interface {
	Bucket() string
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectMetadata, error)
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

// S3 lists objects under a prefix and downloads each to a temp file on Fetch.
type S3 struct {
	store  ObjectStore
	prefix string
}

func NewS3(store ObjectStore, prefix string) *S3 {
	return &S3{store: store, prefix: prefix}
}

func (s *S3) String() string {
	return "s3://" + s.store.Bucket() + "/" + s.prefix
}

func (s *S3) List(ctx context.Context) ([]Item, error) {
	objects, err := s.store.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		docType, ok := domain.DocumentTypeForPath(obj.Key)
		if !ok {
			continue
		}
		items = append(items, Item{ID: obj.Key, Type: docType, Size: obj.ContentLength})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *S3) Fetch(ctx context.Context, item Item) (string, func(), error) {
	f, err := os.CreateTemp("", "docrag-*"+path.Ext(item.ID))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := s.store.Download(ctx, item.ID, f); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", item.ID, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
