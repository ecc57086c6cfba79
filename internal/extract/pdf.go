package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// PDFExtractor reads the text layer with pdftotext. Scanned PDFs without one
// are rasterized with pdftoppm and run through OCR page by page.
type PDFExtractor struct {
	runner     CommandRunner
	pdftotext  string
	pdftoppm   string
	ocr        *OCR
	ocrEnabled bool
	logger     *zap.Logger
}

func (p *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	out, err := p.runner.Run(ctx, p.pdftotext, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(out))
	if text != "" || !p.ocrEnabled {
		return text, nil
	}

	p.logger.Info("pdf has no text layer, running OCR", zap.String("path", path))
	return p.extractWithOCR(ctx, path)
}

func (p *PDFExtractor) extractWithOCR(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "docrag-pdf-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := p.runner.Run(ctx, p.pdftoppm, "-png", "-r", "300", path, prefix); err != nil {
		return "", err
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm produced no pages")
	}
	sortPages(pages)

	var texts []string
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t, err := p.ocr.Extract(ctx, page)
		if err != nil {
			return "", err
		}
		if t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// sortPages orders page-1.png, page-2.png, ..., page-10.png numerically.
// pdftoppm zero-pads to the page count, so length then name is enough.
func sortPages(pages []string) {
	sort.Slice(pages, func(i, j int) bool {
		if len(pages[i]) != len(pages[j]) {
			return len(pages[i]) < len(pages[j])
		}
		return pages[i] < pages[j]
	})
}
