// Package blocks turns a markdown answer into an ordered sequence of typed
// content blocks.
//
// The set of block kinds is closed: Block carries an unexported method, and
// consumers dispatch through Visitor, so a new kind cannot be added without
// every visitor growing a method for it.
package blocks

import "strings"

type Kind int

const (
	KindHeading Kind = iota
	KindParagraph
	KindList
	KindQuote
	KindTable
	KindCode
	KindDiagram
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindParagraph:
		return "paragraph"
	case KindList:
		return "list"
	case KindQuote:
		return "quote"
	case KindTable:
		return "table"
	case KindCode:
		return "code"
	case KindDiagram:
		return "diagram"
	}
	return "unknown"
}

type Block interface {
	Kind() Kind
	accept(v Visitor)
}

// Visitor has one method per block kind.
type Visitor interface {
	VisitHeading(Heading)
	VisitParagraph(Paragraph)
	VisitList(List)
	VisitQuote(Quote)
	VisitTable(Table)
	VisitCode(Code)
	VisitDiagram(Diagram)
}

// Walk dispatches every block to v in order.
func Walk(bs []Block, v Visitor) {
	for _, b := range bs {
		b.accept(v)
	}
}

type Heading struct {
	Level int // 1-3
	Text  Spans
}

type Paragraph struct {
	Spans Spans
}

type List struct {
	Ordered bool
	Items   []Spans
}

type Quote struct {
	Spans Spans
}

type Table struct {
	Headers []Spans
	Rows    [][]Spans
}

type Code struct {
	Language string // empty when the fence carried no tag
	Source   string
}

type Diagram struct {
	Source string
}

func (Heading) Kind() Kind   { return KindHeading }
func (Paragraph) Kind() Kind { return KindParagraph }
func (List) Kind() Kind      { return KindList }
func (Quote) Kind() Kind     { return KindQuote }
func (Table) Kind() Kind     { return KindTable }
func (Code) Kind() Kind      { return KindCode }
func (Diagram) Kind() Kind   { return KindDiagram }

func (b Heading) accept(v Visitor)   { v.VisitHeading(b) }
func (b Paragraph) accept(v Visitor) { v.VisitParagraph(b) }
func (b List) accept(v Visitor)      { v.VisitList(b) }
func (b Quote) accept(v Visitor)     { v.VisitQuote(b) }
func (b Table) accept(v Visitor)     { v.VisitTable(b) }
func (b Code) accept(v Visitor)      { v.VisitCode(b) }
func (b Diagram) accept(v Visitor)   { v.VisitDiagram(b) }

type SpanKind int

const (
	SpanText SpanKind = iota
	SpanCode
)

// Span is the smallest inline unit: plain text or inline code.
type Span struct {
	Kind SpanKind
	Text string
}

func PlainSpan(s string) Span { return Span{Kind: SpanText, Text: s} }
func CodeSpan(s string) Span  { return Span{Kind: SpanCode, Text: s} }

type Spans []Span

// String concatenates the text of every span.
func (s Spans) String() string {
	var b strings.Builder
	for _, sp := range s {
		b.WriteString(sp.Text)
	}
	return b.String()
}

// StripTrailingNewline removes one trailing line terminator ("\n" or "\r\n").
func StripTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
