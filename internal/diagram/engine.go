package diagram

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const (
	EngineKroki = "kroki"
	EngineCLI   = "mmdc"

	DefaultKrokiURL = "https://kroki.io"
	DefaultTimeout  = 15 * time.Second
)

type Config struct {
	Engine   string
	KrokiURL string
	CLIPath  string
	Timeout  time.Duration
	Theme    Theme
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineKroki
	}
	if c.KrokiURL == "" {
		c.KrokiURL = DefaultKrokiURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Theme.Name == "" {
		c.Theme = DefaultTheme()
	}
	return c
}

// Theme is serialized into a mermaid init directive prepended to every
// diagram source.
type Theme struct {
	Name           string            `json:"theme"`
	ThemeVariables map[string]string `json:"themeVariables,omitempty"`
	FontFamily     string            `json:"fontFamily,omitempty"`
	FontSize       int               `json:"fontSize,omitempty"`
	Flowchart      map[string]any    `json:"flowchart,omitempty"`
	Sequence       map[string]int    `json:"sequence,omitempty"`
}

func DefaultTheme() Theme {
	return Theme{
		Name: "base",
		ThemeVariables: map[string]string{
			"primaryColor":       "#3b82f6",
			"primaryTextColor":   "#1f2937",
			"primaryBorderColor": "#2563eb",
			"lineColor":          "#6b7280",
			"secondaryColor":     "#f3f4f6",
			"tertiaryColor":      "#e5e7eb",
			"background":         "#ffffff",
			"mainBkg":            "#ffffff",
			"secondBkg":          "#f9fafb",
			"tertiaryBkg":        "#f3f4f6",
		},
		FontFamily: "Inter, system-ui, sans-serif",
		FontSize:   14,
		Flowchart:  map[string]any{"curve": "linear", "padding": 20},
		Sequence: map[string]int{
			"diagramMarginX": 50,
			"diagramMarginY": 10,
			"actorMargin":    50,
			"width":          150,
			"height":         65,
			"boxMargin":      10,
			"boxTextMargin":  5,
			"noteMargin":     10,
			"messageMargin":  35,
		},
	}
}

func (t Theme) directive() string {
	b, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return "%%{init: " + string(b) + "}%%\n"
}

// engine is the process-wide compilation setup. It is created once and never
// mutated afterwards.
type engine struct {
	compiler  Compiler
	directive string
	timeout   time.Duration
}

var (
	engineOnce sync.Once
	eng        *engine
)

// Init fixes the engine for the lifetime of the process. Only the first call
// has any effect; it reports whether this call did the initialization. A nil
// compiler is chosen from cfg.Engine.
func Init(cfg Config, c Compiler) bool {
	fresh := false
	engineOnce.Do(func() {
		eng = newEngine(cfg, c)
		fresh = true
	})
	return fresh
}

func current() *engine {
	Init(Config{}, nil)
	return eng
}

func newEngine(cfg Config, c Compiler) *engine {
	cfg = cfg.withDefaults()
	if c == nil {
		switch strings.ToLower(cfg.Engine) {
		case EngineCLI:
			c = NewCLI(cfg.CLIPath)
		default:
			c = NewKroki(cfg.KrokiURL, cfg.Timeout)
		}
	}
	return &engine{
		compiler:  c,
		directive: cfg.Theme.directive(),
		timeout:   cfg.Timeout,
	}
}

// compile never fails: errors and unusable output become Unavailable.
func (e *engine) compile(ctx context.Context, source string) Diagram {
	if strings.TrimSpace(source) == "" {
		return Diagram{Status: Unavailable}
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.compiler.Compile(ctx, e.directive+source)
	if err != nil {
		return Diagram{Status: Unavailable}
	}
	svg, ok := sanitizeSVG(raw)
	if !ok {
		return Diagram{Status: Unavailable}
	}
	return Diagram{Status: Ready, SVG: svg}
}
