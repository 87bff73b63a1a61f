package render

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"tutorbook/internal/blocks"
	"tutorbook/internal/diagram"
)

var (
	tagStyles = map[string]lipgloss.Style{
		"subject":        lipgloss.NewStyle().Foreground(lipgloss.Color("#4338ca")).Background(lipgloss.Color("#e0e7ff")).Padding(0, 1),
		"level":          lipgloss.NewStyle().Foreground(lipgloss.Color("#047857")).Background(lipgloss.Color("#d1fae5")).Padding(0, 1),
		"learning_style": lipgloss.NewStyle().Foreground(lipgloss.Color("#7e22ce")).Background(lipgloss.Color("#f3e8ff")).Padding(0, 1),
		"language":       lipgloss.NewStyle().Foreground(lipgloss.Color("#1d4ed8")).Background(lipgloss.Color("#dbeafe")).Padding(0, 1),
	}
	h1Style     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#6366f1"))
	h2Style     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6366f1"))
	h3Style     = lipgloss.NewStyle().Bold(true)
	quoteStyle  = lipgloss.NewStyle().Italic(true).Border(lipgloss.ThickBorder(), false, false, false, true).BorderForeground(lipgloss.Color("#6366f1")).PaddingLeft(1)
	inlineCode  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ec4899"))
	codeStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#334155")).Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Faint(true)
)

type TerminalOptions struct {
	Width int
	// DiagramSink receives every diagram that compiled and returns where it
	// was stored. Without a sink, diagrams are not shown in the terminal.
	DiagramSink func(d diagram.Diagram) (string, error)
}

// Terminal prints a composed view's tags and blocks styled for an ANSI
// terminal. Diagrams are compiled synchronously and handed to the sink.
func (c *Composer) Terminal(ctx context.Context, v *View, opts TerminalOptions) string {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	tv := &termVisitor{c: c, ctx: ctx, opts: opts}

	header := make([]string, 0, len(v.Tags))
	for _, t := range v.Tags {
		header = append(header, tagStyles[t.Name].Render(t.Value))
	}
	tv.out = append(tv.out, strings.Join(header, " "))

	blocks.Walk(v.Blocks(), tv)
	return strings.Join(tv.out, "\n\n") + "\n"
}

var _ blocks.Visitor = (*termVisitor)(nil)

type termVisitor struct {
	c    *Composer
	ctx  context.Context
	opts TerminalOptions
	out  []string
}

func (v *termVisitor) wrap(s string) string {
	return lipgloss.NewStyle().Width(v.opts.Width).Render(s)
}

func (v *termVisitor) VisitHeading(b blocks.Heading) {
	style := h3Style
	switch b.Level {
	case 1:
		style = h1Style
	case 2:
		style = h2Style
	}
	v.out = append(v.out, style.Render(spansTerminal(b.Text)))
}

func (v *termVisitor) VisitParagraph(b blocks.Paragraph) {
	v.out = append(v.out, v.wrap(spansTerminal(b.Spans)))
}

func (v *termVisitor) VisitList(b blocks.List) {
	lines := make([]string, 0, len(b.Items))
	for i, it := range b.Items {
		marker := "•"
		if b.Ordered {
			marker = strconv.Itoa(i+1) + "."
		}
		body := strings.ReplaceAll(spansTerminal(it), "\n", "\n"+strings.Repeat(" ", len(marker)+1))
		lines = append(lines, marker+" "+body)
	}
	v.out = append(v.out, strings.Join(lines, "\n"))
}

func (v *termVisitor) VisitQuote(b blocks.Quote) {
	v.out = append(v.out, quoteStyle.Width(v.opts.Width-2).Render(spansTerminal(b.Spans)))
}

func (v *termVisitor) VisitTable(b blocks.Table) {
	t := table.New().Border(lipgloss.NormalBorder())
	headers := make([]string, 0, len(b.Headers))
	for _, h := range b.Headers {
		headers = append(headers, h.String())
	}
	t.Headers(headers...)
	for _, row := range b.Rows {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, c.String())
		}
		t.Row(cells...)
	}
	v.out = append(v.out, t.String())
}

func (v *termVisitor) VisitCode(b blocks.Code) {
	body := v.c.code.Terminal(b.Language, b.Source)
	if b.Language != "" {
		body = noticeStyle.Render(b.Language) + "\n" + body
	}
	v.out = append(v.out, codeStyle.Render(body))
}

func (v *termVisitor) VisitDiagram(b blocks.Diagram) {
	if v.opts.DiagramSink == nil {
		return
	}
	id := diagram.NewID()
	d := v.c.diagrams.Render(v.ctx, id, b.Source)
	v.c.diagrams.Release(id)
	if !d.Available() {
		return
	}
	where, err := v.opts.DiagramSink(d)
	if err != nil || where == "" {
		return
	}
	v.out = append(v.out, noticeStyle.Render("diagram: "+where))
}

func spansTerminal(spans blocks.Spans) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Kind == blocks.SpanCode {
			sb.WriteString(inlineCode.Render(s.Text))
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
