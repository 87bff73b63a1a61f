package blocks

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// spanBuilder merges adjacent plain text into a single span.
type spanBuilder struct {
	spans Spans
	buf   strings.Builder
}

func (b *spanBuilder) text(s string) {
	b.buf.WriteString(s)
}

func (b *spanBuilder) code(s string) {
	b.flush()
	b.spans = append(b.spans, CodeSpan(s))
}

func (b *spanBuilder) flush() {
	if b.buf.Len() == 0 {
		return
	}
	b.spans = append(b.spans, PlainSpan(b.buf.String()))
	b.buf.Reset()
}

func (b *spanBuilder) done() Spans {
	b.flush()
	return b.spans
}

func inlineSpans(n ast.Node, source []byte) Spans {
	var b spanBuilder
	collectInline(&b, n, source)
	return b.done()
}

func collectInline(b *spanBuilder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			b.text(string(v.Segment.Value(source)))
			if v.HardLineBreak() {
				b.text("\n")
			} else if v.SoftLineBreak() {
				b.text(" ")
			}
		case *ast.String:
			b.text(string(v.Value))
		case *ast.CodeSpan:
			b.code(codeSpanText(v, source))
		case *ast.AutoLink:
			b.text(string(v.Label(source)))
		case *ast.RawHTML:
			for i := 0; i < v.Segments.Len(); i++ {
				seg := v.Segments.At(i)
				b.text(string(seg.Value(source)))
			}
		default:
			// Emphasis, links, images and strikethrough keep only their text.
			collectInline(b, c, source)
		}
	}
}

func codeSpanText(n *ast.CodeSpan, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
		case *ast.String:
			sb.Write(v.Value)
		}
	}
	return strings.ReplaceAll(sb.String(), "\n", " ")
}

// flattenSpans collapses a container (list item, blockquote) into one span
// sequence. Child blocks are separated by a newline; nested code keeps its
// text as inline code.
func flattenSpans(n ast.Node, source []byte) Spans {
	var b spanBuilder
	flattenInto(&b, n, source)
	return b.done()
}

func flattenInto(b *spanBuilder, n ast.Node, source []byte) {
	first := true
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if !first {
			b.text("\n")
		}
		first = false

		switch v := c.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			collectInline(b, v, source)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			b.code(StripTrailingNewline(string(v.Lines().Value(source))))
		case *ast.HTMLBlock:
			b.text(rawHTMLBlock(v, source))
		case *ast.ThematicBreak:
			b.text("---")
		default:
			if c.Type() == ast.TypeInline {
				collectInline(b, n, source)
				return
			}
			flattenInto(b, c, source)
		}
	}
}
