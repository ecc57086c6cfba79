package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// Local walks a folder recursively. Hidden files and directories are skipped.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) String() string {
	return l.root
}

// List returns supported files in lexical order of their ids.
func (l *Local) List(ctx context.Context) ([]Item, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("folder %s: %w", l.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", l.root)
	}

	var items []Item
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != l.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		docType, ok := domain.DocumentTypeForPath(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, Item{ID: filepath.ToSlash(rel), Type: docType, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Fetch resolves the item inside the folder. Nothing needs cleaning up.
func (l *Local) Fetch(ctx context.Context, item Item) (string, func(), error) {
	return filepath.Join(l.root, filepath.FromSlash(item.ID)), noop, nil
}
