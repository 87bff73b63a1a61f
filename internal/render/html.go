package render

import (
	"context"
	"html"
	"strconv"
	"strings"

	"tutorbook/internal/blocks"
	"tutorbook/internal/diagram"
)

var _ blocks.Visitor = (*htmlVisitor)(nil)

type htmlVisitor struct {
	c    *Composer
	ctx  context.Context
	mode DiagramMode

	elements   []Element
	diagramIDs []string
}

func (v *htmlVisitor) add(kind blocks.Kind, markup string) {
	v.elements = append(v.elements, Element{Kind: kind.String(), HTML: v.c.policy.Sanitize(markup)})
}

func (v *htmlVisitor) VisitHeading(b blocks.Heading) {
	lvl := strconv.Itoa(b.Level)
	v.add(b.Kind(), `<h`+lvl+` class="answer-h`+lvl+`">`+spansHTML(b.Text)+`</h`+lvl+`>`)
}

func (v *htmlVisitor) VisitParagraph(b blocks.Paragraph) {
	v.add(b.Kind(), `<p>`+spansHTML(b.Spans)+`</p>`)
}

func (v *htmlVisitor) VisitList(b blocks.List) {
	tag := "ul"
	if b.Ordered {
		tag = "ol"
	}
	var sb strings.Builder
	sb.WriteString(`<` + tag + ` class="answer-list">`)
	for _, it := range b.Items {
		sb.WriteString(`<li>`)
		sb.WriteString(spansHTML(it))
		sb.WriteString(`</li>`)
	}
	sb.WriteString(`</` + tag + `>`)
	v.add(b.Kind(), sb.String())
}

func (v *htmlVisitor) VisitQuote(b blocks.Quote) {
	v.add(b.Kind(), `<blockquote class="answer-quote"><p>`+spansHTML(b.Spans)+`</p></blockquote>`)
}

func (v *htmlVisitor) VisitTable(b blocks.Table) {
	var sb strings.Builder
	sb.WriteString(`<div class="table-wrap"><table>`)
	if len(b.Headers) > 0 {
		sb.WriteString(`<thead><tr>`)
		for _, h := range b.Headers {
			sb.WriteString(`<th>` + spansHTML(h) + `</th>`)
		}
		sb.WriteString(`</tr></thead>`)
	}
	sb.WriteString(`<tbody>`)
	for _, row := range b.Rows {
		sb.WriteString(`<tr>`)
		for _, cell := range row {
			sb.WriteString(`<td>` + spansHTML(cell) + `</td>`)
		}
		sb.WriteString(`</tr>`)
	}
	sb.WriteString(`</tbody></table></div>`)
	v.add(b.Kind(), sb.String())
}

func (v *htmlVisitor) VisitCode(b blocks.Code) {
	v.add(b.Kind(), v.c.code.HTML(b.Language, b.Source))
}

// Diagram markup bypasses the UGC policy; the diagram package has already
// run its own SVG policy over the output.
func (v *htmlVisitor) VisitDiagram(b blocks.Diagram) {
	id := diagram.NewID()
	v.diagramIDs = append(v.diagramIDs, id)
	el := Element{Kind: b.Kind().String(), DiagramID: id}

	switch v.mode {
	case DiagramsSkip:
	case DiagramsDeferred:
		v.c.diagrams.Request(v.ctx, id, b.Source)
		el.HTML = `<div class="diagram diagram-pending" id="` + id + `"></div>`
	default:
		d := v.c.diagrams.Render(v.ctx, id, b.Source)
		if d.Available() {
			el.HTML = `<div class="diagram" id="` + id + `">` + d.SVG + `</div>`
		}
	}
	v.elements = append(v.elements, el)
}

func spansHTML(spans blocks.Spans) string {
	var sb strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case blocks.SpanCode:
			sb.WriteString(`<code class="inline-code">`)
			sb.WriteString(html.EscapeString(s.Text))
			sb.WriteString(`</code>`)
		default:
			sb.WriteString(strings.ReplaceAll(html.EscapeString(s.Text), "\n", "<br/>"))
		}
	}
	return sb.String()
}

func tagsHTML(tags []Tag) string {
	var sb strings.Builder
	sb.WriteString(`<div class="answer-tags">`)
	for _, t := range tags {
		sb.WriteString(`<span class="tag tag-`)
		sb.WriteString(strings.ReplaceAll(t.Name, "_", "-"))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(t.Value))
		sb.WriteString(`</span>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}
