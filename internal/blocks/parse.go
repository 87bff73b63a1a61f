package blocks

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const diagramLanguage = "mermaid"

// The parser carries the table and strikethrough extensions but not the
// link reference transformer: a "[label]: url" line stays paragraph text
// instead of vanishing into the parse context. It is safe for concurrent use.
var mdParser = parser.NewParser(
	parser.WithBlockParsers(parser.DefaultBlockParsers()...),
	parser.WithInlineParsers(append(parser.DefaultInlineParsers(),
		util.Prioritized(extension.NewStrikethroughParser(), 500))...),
	parser.WithParagraphTransformers(
		util.Prioritized(extension.NewTableParagraphTransformer(), 200)),
	parser.WithASTTransformers(
		util.Prioritized(extension.NewTableASTTransformer(), 0)),
)

// Parse converts markdown into blocks in source order. It never fails: any
// construct without a dedicated kind becomes a Paragraph.
func Parse(src string) []Block {
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))

	out := make([]Block, 0, 16)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		b := convert(n, source)
		if p, ok := b.(Paragraph); ok && len(p.Spans) == 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

func convert(n ast.Node, source []byte) Block {
	switch v := n.(type) {
	case *ast.Heading:
		spans := inlineSpans(v, source)
		if v.Level > 3 {
			return Paragraph{Spans: spans}
		}
		return Heading{Level: v.Level, Text: spans}
	case *ast.Paragraph, *ast.TextBlock:
		return Paragraph{Spans: inlineSpans(v, source)}
	case *ast.List:
		l := List{Ordered: v.IsOrdered()}
		for item := v.FirstChild(); item != nil; item = item.NextSibling() {
			l.Items = append(l.Items, flattenSpans(item, source))
		}
		return l
	case *ast.Blockquote:
		return Quote{Spans: flattenSpans(v, source)}
	case *ast.FencedCodeBlock:
		lang := string(v.Language(source))
		body := StripTrailingNewline(string(v.Lines().Value(source)))
		if lang == diagramLanguage {
			return Diagram{Source: body}
		}
		return Code{Language: lang, Source: body}
	case *ast.CodeBlock:
		return Code{Source: StripTrailingNewline(string(v.Lines().Value(source)))}
	case *east.Table:
		return convertTable(v, source)
	case *ast.ThematicBreak:
		return Paragraph{Spans: Spans{PlainSpan("---")}}
	case *ast.HTMLBlock:
		return Paragraph{Spans: Spans{PlainSpan(rawHTMLBlock(v, source))}}
	default:
		return Paragraph{Spans: flattenSpans(n, source)}
	}
}

func convertTable(t *east.Table, source []byte) Table {
	var tbl Table
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		cells := make([]Spans, 0, len(t.Alignments))
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, inlineSpans(cell, source))
		}
		if _, ok := row.(*east.TableHeader); ok {
			tbl.Headers = cells
			continue
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	return tbl
}

func rawHTMLBlock(n *ast.HTMLBlock, source []byte) string {
	var b strings.Builder
	b.Write(n.Lines().Value(source))
	if n.HasClosure() {
		b.Write(n.ClosureLine.Value(source))
	}
	return strings.TrimRight(b.String(), "\r\n")
}
