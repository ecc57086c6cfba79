package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"
)

func extractXML(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return xmlText(f)
}

// xmlText collects character data, one line per element that carries text.
func xmlText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var lines []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(xml.CharData); ok {
			if s := strings.TrimSpace(string(cd)); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
