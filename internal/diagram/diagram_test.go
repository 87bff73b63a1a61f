package diagram

import (
	"context"
	"encoding/xml"
	"errors"
	"html"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fake compiler shared by every test in the package (the engine is
// process-wide). Sources ending in "--" fail; "slow:<name>" blocks until the
// gate for <name> is closed.
var (
	gatesMu sync.Mutex
	gates   = map[string]chan struct{}{}

	lastMu     sync.Mutex
	lastSource string
)

func gate(name string) chan struct{} {
	gatesMu.Lock()
	defer gatesMu.Unlock()
	ch, ok := gates[name]
	if !ok {
		ch = make(chan struct{})
		gates[name] = ch
	}
	return ch
}

func fakeCompile(ctx context.Context, full string) ([]byte, error) {
	lastMu.Lock()
	lastSource = full
	lastMu.Unlock()

	src := full
	if i := strings.Index(full, "}%%\n"); i >= 0 {
		src = full[i+len("}%%\n"):]
	}
	if strings.HasPrefix(src, "slow:") {
		select {
		case <-gate(strings.TrimPrefix(src, "slow:")):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.HasSuffix(strings.TrimSpace(src), "--") {
		return nil, errors.New("parse error")
	}
	if src == "script" {
		return []byte(`<script>alert(1)</script>`), nil
	}
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg"><text>` + html.EscapeString(src) + `</text></svg>`), nil
}

func TestMain(m *testing.M) {
	Init(Config{Timeout: 5 * time.Second}, CompilerFunc(fakeCompile))
	os.Exit(m.Run())
}

func TestInit_OnlyOnce(t *testing.T) {
	assert.False(t, Init(Config{Engine: EngineCLI}, nil))
	_, isFake := current().compiler.(CompilerFunc)
	assert.True(t, isFake)
}

func TestRenderer_Render_Success(t *testing.T) {
	r := NewRenderer()
	d := r.Render(context.Background(), "d1", "graph TD; A-->B;")

	assert.Equal(t, Ready, d.Status)
	assert.Equal(t, "d1", d.ID)
	assert.Contains(t, d.SVG, "<svg")
	assert.Contains(t, d.SVG, "A--&gt;B;")
	assert.True(t, d.Available())
	assert.Equal(t, d, r.Result("d1"))
}

func TestRenderer_Render_PrependsThemeDirective(t *testing.T) {
	r := NewRenderer()
	_ = r.Render(context.Background(), "themed", "graph LR; X-->Y;")

	lastMu.Lock()
	got := lastSource
	lastMu.Unlock()
	assert.True(t, strings.HasPrefix(got, "%%{init: "))
	assert.Contains(t, got, `"primaryColor":"#3b82f6"`)
	assert.True(t, strings.HasSuffix(got, "graph LR; X-->Y;"))
}

func TestRenderer_Render_MalformedIsSilent(t *testing.T) {
	r := NewRenderer()
	var d Diagram
	assert.NotPanics(t, func() {
		d = r.Render(context.Background(), "bad", "graph TD; A--")
	})
	assert.Equal(t, Unavailable, d.Status)
	assert.Empty(t, d.SVG)
	assert.False(t, d.Available())
}

func TestRenderer_Render_EmptyAndUnsafeOutput(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, Unavailable, r.Render(context.Background(), "empty", "   ").Status)
	assert.Equal(t, Unavailable, r.Render(context.Background(), "script", "script").Status)
}

func TestRenderer_SiblingsIndependent(t *testing.T) {
	r := NewRenderer()
	good := r.Request(context.Background(), "good", "graph TD; A-->B;")
	bad := r.Request(context.Background(), "broken", "graph TD; A--")

	dg := <-good
	db := <-bad
	assert.Equal(t, Ready, dg.Status)
	assert.Equal(t, Unavailable, db.Status)
}

func TestRenderer_LastRequestWins(t *testing.T) {
	r := NewRenderer()
	var (
		mu      sync.Mutex
		applied []Diagram
	)
	r.Subscribe(func(d Diagram) {
		if d.ID != "lrw" {
			return
		}
		mu.Lock()
		applied = append(applied, d)
		mu.Unlock()
	})

	first := r.Request(context.Background(), "lrw", "slow:lrw-first")
	assert.Equal(t, Pending, r.Result("lrw").Status)

	second := r.Request(context.Background(), "lrw", "second")
	d2, ok := <-second
	require.True(t, ok)
	assert.Contains(t, d2.SVG, "second")

	close(gate("lrw-first"))
	_, ok = <-first
	assert.False(t, ok, "stale result must not be delivered")

	assert.Contains(t, r.Result("lrw").SVG, "second")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, applied[0].SVG, "second")
}

func TestRenderer_BusyListenerDoesNotBlock(t *testing.T) {
	r := NewRenderer()
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []string
	)
	r.Subscribe(func(d Diagram) {
		if d.ID != "busy-a" && d.ID != "busy-b" {
			return
		}
		if d.ID == "busy-a" {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, d.ID)
		mu.Unlock()
	})

	<-r.Request(context.Background(), "busy-a", "graph TD; A-->B;")
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("listener never called")
	}

	done := make(chan Diagram, 1)
	go func() {
		_ = r.Result("other")
		r.Release("other")
		done <- r.Render(context.Background(), "busy-b", "graph TD; C-->D;")
	}()
	select {
	case d := <-done:
		assert.Equal(t, Ready, d.Status)
	case <-time.After(time.Second):
		t.Fatal("renderer blocked while a listener is busy")
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"busy-a", "busy-b"}, seen, "delivered in apply order")
}

func TestRenderer_RenderSupersededReturnsCurrent(t *testing.T) {
	r := NewRenderer()
	done := make(chan Diagram)
	go func() {
		done <- r.Render(context.Background(), "sup", "slow:sup-first")
	}()

	// Wait until the first request is registered.
	require.Eventually(t, func() bool { return r.Result("sup").Status == Pending }, time.Second, 5*time.Millisecond)
	d2 := r.Render(context.Background(), "sup", "newer")
	close(gate("sup-first"))

	d1 := <-done
	assert.Equal(t, d2, d1)
}

func TestRenderer_RenderContextDone(t *testing.T) {
	r := NewRenderer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := r.Render(ctx, "ctx", "slow:ctx-never")
	assert.Equal(t, Unavailable, d.Status)
	close(gate("ctx-never"))
}

func TestRenderer_ReleaseDropsInFlight(t *testing.T) {
	r := NewRenderer()
	ch := r.Request(context.Background(), "rel", "slow:rel")
	r.Release("rel")
	close(gate("rel"))

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, Unavailable, r.Result("rel").Status)
}

func TestNewID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.True(t, strings.HasPrefix(id, "diagram-"))
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSanitizeSVG(t *testing.T) {
	out, ok := sanitizeSVG([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10" onload="alert(1)"><script>alert(2)</script><a href="javascript:alert(3)"><circle cx="5" cy="5" r="4" fill="#3b82f6"/></a></svg>`))
	require.True(t, ok)
	assert.NotContains(t, out, "onload")
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "<circle")
	assert.Contains(t, out, `fill="#3b82f6"`)

	_, ok = sanitizeSVG([]byte("not svg at all"))
	assert.False(t, ok)
}

func TestSanitizeSVG_KeepsSVGNames(t *testing.T) {
	raw := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10" preserveAspectRatio="xMidYMid meet">` +
		`<defs><marker id="arrow" refX="5" refY="5" markerWidth="4" markerHeight="4"><path d="M0,0 L10,5"></path></marker></defs>` +
		`<g><foreignObject width="8" height="8"><div>label</div></foreignObject></g></svg>`
	out, ok := sanitizeSVG([]byte(raw))
	require.True(t, ok)

	for _, want := range []string{
		`viewBox="0 0 10 10"`, `preserveAspectRatio="xMidYMid meet"`, `refX="5"`, `markerWidth="4"`,
		"<defs>", "<g>", "<foreignObject", "</foreignObject>", "label",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "viewbox")
	assert.NotContains(t, out, "foreignobject")

	var doc struct {
		XMLName xml.Name `xml:"svg"`
		ViewBox string   `xml:"viewBox,attr"`
		G       struct {
			Foreign struct {
				Div string `xml:"div"`
			} `xml:"foreignObject"`
		} `xml:"g"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &doc), out)
	assert.Equal(t, "0 0 10 10", doc.ViewBox)
	assert.Equal(t, "label", doc.G.Foreign.Div)
}

func TestStatus_Text(t *testing.T) {
	for _, s := range []Status{Pending, Ready, Unavailable} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}
	var s Status
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}
