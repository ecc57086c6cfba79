package service

import (
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// BoundaryMode selects the units chunks are assembled from.
type BoundaryMode string

const (
	// BoundarySemantic accumulates whole sentences.
	BoundarySemantic BoundaryMode = "semantic"
	// BoundaryParagraph accumulates whole paragraphs, falling back to
	// sentences for paragraphs longer than the chunk size.
	BoundaryParagraph BoundaryMode = "paragraph"
)

// ChunkConfig controls chunking. Size and Overlap are word counts.
type ChunkConfig struct {
	Size    int
	Overlap int
	Mode    BoundaryMode
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    300,
		Overlap: 50,
		Mode:    BoundarySemantic,
	}
}

// Validate rejects configurations the chunker cannot honor.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return domain.Wrapf(domain.ErrInvalidConfig, "chunk_size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return domain.Wrapf(domain.ErrInvalidConfig, "chunk_overlap (%d) must be in [0, chunk_size=%d)", c.Overlap, c.Size)
	}
	if c.Mode != BoundarySemantic && c.Mode != BoundaryParagraph {
		return domain.Wrapf(domain.ErrInvalidConfig, "unknown boundary mode %q", c.Mode)
	}
	return nil
}

// Chunker splits document text into overlapping passages. It holds no state
// beyond its configuration and is safe for concurrent use.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Chunk splits doc.Text into chunks with gapless positions 0..N-1.
// Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	spans := chunkText(doc.Text, c.cfg)
	if len(spans) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, domain.Chunk{
			ID:           domain.ChunkID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentType: doc.Type,
			Position:     i,
			Text:         s.text,
			WordCount:    s.words,
			OverlapWords: s.overlap,
			StartOffset:  s.start,
			EndOffset:    s.end,
		})
	}
	return chunks
}

type word struct {
	start, end  int
	sentenceEnd bool
}

// wordRange is a half-open range of word indices.
type wordRange struct {
	from, to int
}

func (r wordRange) len() int { return r.to - r.from }

type normalizedText struct {
	text       string
	words      []word
	paragraphs []wordRange
}

type chunkSpan struct {
	text       string
	words      int
	overlap    int
	start, end int
}

func chunkText(text string, cfg ChunkConfig) []chunkSpan {
	norm := normalize(text)
	if len(norm.words) == 0 {
		return nil
	}

	units := boundaryUnits(norm, cfg)
	spans := make([]chunkSpan, 0, len(norm.words)/cfg.Size+1)

	start, overlap := 0, 0
	next := 0
	for next < len(units) {
		// A chunk always takes at least one new unit, even when that unit alone
		// is larger than the target size.
		end := units[next].to
		next++
		for next < len(units) && units[next].to-start <= cfg.Size {
			end = units[next].to
			next++
		}

		spans = append(spans, chunkSpan{
			text:    norm.text[norm.words[start].start:norm.words[end-1].end],
			words:   end - start,
			overlap: overlap,
			start:   norm.words[start].start,
			end:     norm.words[end-1].end,
		})

		overlap = min(cfg.Overlap, end-start)
		start = end - overlap
	}

	return spans
}

// normalize splits text into paragraphs on blank lines, collapses whitespace
// inside each paragraph and joins paragraphs with a blank line.
func normalize(text string) normalizedText {
	var (
		b    strings.Builder
		out  normalizedText
		para []string
	)

	flush := func() {
		if len(para) == 0 {
			return
		}
		fields := strings.Fields(strings.Join(para, " "))
		para = para[:0]
		if len(fields) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		first := len(out.words)
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(' ')
			}
			start := b.Len()
			b.WriteString(f)
			out.words = append(out.words, word{start: start, end: b.Len(), sentenceEnd: endsSentence(f)})
		}
		out.words[len(out.words)-1].sentenceEnd = true
		out.paragraphs = append(out.paragraphs, wordRange{from: first, to: len(out.words)})
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()

	out.text = b.String()
	return out
}

func boundaryUnits(norm normalizedText, cfg ChunkConfig) []wordRange {
	var units []wordRange
	for _, p := range norm.paragraphs {
		if cfg.Mode == BoundaryParagraph && p.len() <= cfg.Size {
			units = append(units, p)
			continue
		}
		units = append(units, sentences(norm.words, p)...)
	}
	return units
}

func sentences(words []word, p wordRange) []wordRange {
	var out []wordRange
	from := p.from
	for i := p.from; i < p.to; i++ {
		if words[i].sentenceEnd {
			out = append(out, wordRange{from: from, to: i + 1})
			from = i + 1
		}
	}
	return out
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]}»”’`)
	if w == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(w)
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
