// Package highlight renders fenced code blocks with chroma. Unknown or missing
// languages degrade to plain monospace text; nothing here returns an error to
// the caller.
package highlight

import (
	"bytes"
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	DefaultStyle     = "github"
	DefaultDarkStyle = "dracula"
)

type Renderer struct {
	style     *chroma.Style
	darkStyle *chroma.Style
	html      *chromahtml.Formatter
}

// New picks the light and dark chroma styles by name, falling back to
// chroma's default for unknown names.
func New(styleName, darkStyleName string) *Renderer {
	return &Renderer{
		style:     lookupStyle(styleName, DefaultStyle),
		darkStyle: lookupStyle(darkStyleName, DefaultDarkStyle),
		html: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.WithLineNumbers(true),
			chromahtml.WrapLongLines(true),
		),
	}
}

func lookupStyle(name, def string) *chroma.Style {
	if name == "" {
		name = def
	}
	s := styles.Get(name)
	if s == nil {
		return styles.Fallback
	}
	return s
}

// Lexer returns the chroma lexer for lang, or nil when lang is empty or
// unknown.
func Lexer(lang string) chroma.Lexer {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return nil
	}
	l := lexers.Get(lang)
	if l == nil {
		return nil
	}
	return chroma.Coalesce(l)
}

// Recognized reports whether lang gets token highlighting.
func Recognized(lang string) bool {
	return Lexer(lang) != nil
}

// HTML renders one code block. Recognized languages are wrapped with a
// language label; everything else is a plain escaped <pre>.
func (r *Renderer) HTML(lang, source string) string {
	lexer := Lexer(lang)
	if lexer == nil {
		return plainHTML(source)
	}
	it, err := lexer.Tokenise(nil, source)
	if err != nil {
		return plainHTML(source)
	}
	var buf bytes.Buffer
	if err := r.html.Format(&buf, r.style, it); err != nil {
		return plainHTML(source)
	}

	var b strings.Builder
	b.WriteString(`<div class="code-block" data-language="`)
	b.WriteString(html.EscapeString(lang))
	b.WriteString(`"><span class="code-lang">`)
	b.WriteString(html.EscapeString(lang))
	b.WriteString(`</span>`)
	b.Write(buf.Bytes())
	b.WriteString(`</div>`)
	return b.String()
}

func plainHTML(source string) string {
	return `<pre class="code-plain"><code>` + html.EscapeString(source) + `</code></pre>`
}

// Terminal renders one code block as ANSI text. Unrecognized languages come
// back unchanged.
func (r *Renderer) Terminal(lang, source string) string {
	lexer := Lexer(lang)
	if lexer == nil {
		return source
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return source
	}
	it, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, r.darkStyle, it); err != nil {
		return source
	}
	return strings.TrimRight(buf.String(), "\n")
}

// CSS writes the stylesheet for the chroma classes. dark selects the dark
// style.
func (r *Renderer) CSS(w io.Writer, dark bool) error {
	s := r.style
	if dark {
		s = r.darkStyle
	}
	return r.html.WriteCSS(w, s)
}
