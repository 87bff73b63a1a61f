package render

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/microcosm-cc/bluemonday"

	"tutorbook/internal/answer"
	"tutorbook/internal/blocks"
	"tutorbook/internal/diagram"
	"tutorbook/internal/highlight"
)

type DiagramMode int

const (
	// DiagramsInline waits for each compile and embeds the SVG.
	DiagramsInline DiagramMode = iota
	// DiagramsDeferred emits a placeholder and leaves delivery to the
	// renderer's subscribers.
	DiagramsDeferred
	// DiagramsSkip issues ids but compiles nothing; for views that are only
	// printed to a terminal or copied.
	DiagramsSkip
)

type Options struct {
	CodeStyle     string
	DarkCodeStyle string
	Diagrams      *diagram.Renderer
}

type ComposeOptions struct {
	Diagrams DiagramMode
	OnReset  func()
}

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Element struct {
	Kind      string `json:"kind"`
	HTML      string `json:"html"`
	DiagramID string `json:"diagram_id,omitempty"`
}

// View is one display cycle of an answer. It is built from an immutable
// Response; the composer keeps nothing once the view is handed out.
type View struct {
	Tags     []Tag     `json:"tags"`
	Elements []Element `json:"elements"`
	HTML     string    `json:"html"`
	Answer   string    `json:"answer"`

	blocks     []blocks.Block
	diagramIDs []string
	release    func(ids ...string)
	onReset    func()
}

// CopyText is the raw, unrendered answer exactly as received.
func (v *View) CopyText() string { return v.Answer }

type Clipboard interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// SystemClipboard writes to the OS clipboard.
var SystemClipboard Clipboard = systemClipboard{}

func (v *View) Copy(cb Clipboard) error {
	return cb.WriteAll(v.CopyText())
}

// Reset hands ownership back to the caller: pending diagrams are released,
// the view is cleared, and the caller's reset callback runs.
func (v *View) Reset() {
	if v.release != nil && len(v.diagramIDs) > 0 {
		v.release(v.diagramIDs...)
	}
	onReset := v.onReset
	*v = View{}
	if onReset != nil {
		onReset()
	}
}

// Blocks returns the parsed block sequence behind the view.
func (v *View) Blocks() []blocks.Block { return v.blocks }

// DiagramIDs lists the diagram identifiers issued for this view.
func (v *View) DiagramIDs() []string { return v.diagramIDs }

type Composer struct {
	code     *highlight.Renderer
	diagrams *diagram.Renderer
	policy   *bluemonday.Policy

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	mtime int64
	view  *View
}

func New(opts Options) *Composer {
	c := &Composer{
		code:     highlight.New(opts.CodeStyle, opts.DarkCodeStyle),
		diagrams: opts.Diagrams,
		cache:    make(map[string]cached),
	}
	if c.diagrams == nil {
		c.diagrams = diagram.NewRenderer()
	}

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("div", "pre", "code", "span", "p", "h1", "h2", "h3", "ul", "ol", "li", "blockquote", "table", "th", "td")
	p.AllowAttrs("data-language").OnElements("div")
	c.policy = p

	return c
}

func (c *Composer) Code() *highlight.Renderer { return c.code }

func (c *Composer) Diagrams() *diagram.Renderer { return c.diagrams }

// Compose parses resp.Answer once and renders the tag header followed by
// every block in source order.
func (c *Composer) Compose(ctx context.Context, resp answer.Response, opts ComposeOptions) *View {
	bs := blocks.Parse(resp.Answer)

	v := &View{
		Tags: []Tag{
			{Name: "subject", Value: resp.Subject},
			{Name: "level", Value: resp.Level},
			{Name: "learning_style", Value: resp.LearningStyle},
			{Name: "language", Value: resp.Language},
		},
		Answer:  resp.Answer,
		blocks:  bs,
		release: c.diagrams.Release,
		onReset: opts.OnReset,
	}

	hv := &htmlVisitor{c: c, ctx: ctx, mode: opts.Diagrams}
	blocks.Walk(bs, hv)
	v.Elements = hv.elements
	v.diagramIDs = hv.diagramIDs

	var b strings.Builder
	b.WriteString(`<article class="answer">`)
	b.WriteString(tagsHTML(v.Tags))
	b.WriteString(`<div class="answer-body">`)
	for _, el := range v.Elements {
		b.WriteString(el.HTML)
	}
	b.WriteString(`</div></article>`)
	v.HTML = b.String()
	return v
}

// ComposeFile renders a markdown file, reusing the previous view while the
// file's mtime is unchanged. Diagrams are inlined.
func (c *Composer) ComposeFile(ctx context.Context, path string, meta answer.Response) (*View, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mtime := st.ModTime().UnixNano()

	c.mu.Lock()
	if e, ok := c.cache[path]; ok && e.mtime == mtime {
		v := e.view
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer: %w", err)
	}
	meta.Answer = string(src)
	v := c.Compose(ctx, meta, ComposeOptions{Diagrams: DiagramsInline})

	c.mu.Lock()
	c.cache[path] = cached{mtime: mtime, view: v}
	c.mu.Unlock()
	return v, nil
}
