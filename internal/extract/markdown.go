package extract

import (
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

func extractMarkdown(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return markdownText(data), nil
}

// markdownText renders markdown to plain text, one block per paragraph.
// Markup is dropped; code blocks keep their lines.
func markdownText(source []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if s := blockText(node, source); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func blockText(n ast.Node, source []byte) string {
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		var sb strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			sb.Write(line.Value(source))
		}
		return strings.TrimSpace(sb.String())
	case ast.KindList, ast.KindBlockquote:
		var items []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if s := blockText(c, source); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, "\n")
	case ast.KindListItem:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if s := blockText(c, source); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case ast.KindThematicBreak:
		return ""
	}
	return inlineText(n, source)
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if seg, ok := c.(*ast.Text); ok {
					sb.Write(seg.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
