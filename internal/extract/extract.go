// Package extract turns source files into plain text, one extractor per document type.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docrag/internal/domain"
	"go.uber.org/zap"
)

// Extractor returns the text of one file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Config selects the external tools used for PDF and image extraction.
type Config struct {
	OCREnabled   bool
	OCRLanguages string
	PDFToTextBin string
	PDFToPPMBin  string
	TesseractBin string
}

// DefaultConfig matches a stock poppler + tesseract install.
func DefaultConfig() Config {
	return Config{
		OCREnabled:   true,
		OCRLanguages: "eng+swe",
		PDFToTextBin: "pdftotext",
		PDFToPPMBin:  "pdftoppm",
		TesseractBin: "tesseract",
	}
}

// Registry maps each document type to its extractor. It is built once and
// only read afterwards.
type Registry struct {
	extractors map[domain.DocumentType]Extractor
	logger     *zap.Logger
}

// NewRegistry builds the dispatch table for every supported document type.
func NewRegistry(cfg Config, runner CommandRunner, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	ocr := &OCR{runner: runner, bin: cfg.TesseractBin, languages: cfg.OCRLanguages}

	return &Registry{
		extractors: map[domain.DocumentType]Extractor{
			domain.DocumentTypeText:     ExtractorFunc(extractPlainText),
			domain.DocumentTypeMarkdown: ExtractorFunc(extractMarkdown),
			domain.DocumentTypeXML:      ExtractorFunc(extractXML),
			domain.DocumentTypeDOCX:     ExtractorFunc(extractDOCX),
			domain.DocumentTypePDF: &PDFExtractor{
				runner:     runner,
				pdftotext:  cfg.PDFToTextBin,
				pdftoppm:   cfg.PDFToPPMBin,
				ocr:        ocr,
				ocrEnabled: cfg.OCREnabled,
				logger:     logger,
			},
			domain.DocumentTypeImage: ocr,
		},
		logger: logger,
	}
}

// NewRegistryWith builds a registry from an explicit table.
func NewRegistryWith(extractors map[domain.DocumentType]Extractor) *Registry {
	table := make(map[domain.DocumentType]Extractor, len(extractors))
	for t, e := range extractors {
		table[t] = e
	}
	return &Registry{extractors: table, logger: zap.NewNop()}
}

// Supports reports whether t has an extractor.
func (r *Registry) Supports(t domain.DocumentType) bool {
	_, ok := r.extractors[t]
	return ok
}

// Extract dispatches on t. Failures are ErrUnsupportedType or ErrExtraction.
func (r *Registry) Extract(ctx context.Context, path string, t domain.DocumentType) (string, error) {
	e, ok := r.extractors[t]
	if !ok {
		return "", domain.Wrapf(domain.ErrUnsupportedType, "no extractor for %q (%s)", path, t)
	}

	text, err := e.Extract(ctx, path)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			return "", err
		}
		return "", domain.Wrap(domain.ErrExtraction, fmt.Errorf("%s: %w", path, err))
	}
	return text, nil
}
