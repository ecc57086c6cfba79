package extract

import (
	"context"
	"strings"
)

// OCR extracts text from an image with tesseract.
type OCR struct {
	runner    CommandRunner
	bin       string
	languages string
}

func (o *OCR) Extract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout"}
	if o.languages != "" {
		args = append(args, "-l", o.languages)
	}
	out, err := o.runner.Run(ctx, o.bin, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
