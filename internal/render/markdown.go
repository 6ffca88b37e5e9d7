// ABOUTME: Renders markdown message bodies to plain terminal text.
// ABOUTME: Walks the goldmark AST instead of regex-stripping formatting marks.

package render

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// Plain converts a markdown message body into plain text suitable for a
// terminal: emphasis marks are dropped, list items get bullets, code blocks
// are indented. Input that is not markdown comes back unchanged apart from
// whitespace normalization.
func Plain(body string) string {
	src := []byte(body)
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}

		case *ast.Paragraph, *ast.Heading:
			if !entering {
				b.WriteByte('\n')
				if n.NextSibling() != nil && n.Parent().Kind() == ast.KindDocument {
					b.WriteByte('\n')
				}
			}

		case *ast.TextBlock:
			// Tight list items wrap their text in a TextBlock, not a Paragraph
			if !entering {
				b.WriteByte('\n')
			}

		case *ast.ListItem:
			if entering {
				b.WriteString("• ")
			}

		case *ast.FencedCodeBlock:
			if entering {
				writeCodeLines(&b, node.Lines(), src)
				if n.NextSibling() != nil {
					b.WriteByte('\n')
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.CodeBlock:
			if entering {
				writeCodeLines(&b, node.Lines(), src)
				if n.NextSibling() != nil {
					b.WriteByte('\n')
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.AutoLink:
			if entering {
				b.Write(node.URL(src))
			}
			return ast.WalkSkipChildren, nil

		case *ast.ThematicBreak:
			if entering {
				b.WriteString("---\n")
			}
		}

		return ast.WalkContinue, nil
	})

	return strings.TrimRight(b.String(), "\n")
}

// writeCodeLines emits the raw lines of a code block, indented.
func writeCodeLines(b *strings.Builder, lines *text.Segments, src []byte) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.WriteString("    ")
		b.Write(line.Value(src))
	}
}
