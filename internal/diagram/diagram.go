// Package diagram compiles mermaid sources into SVG.
//
// Compilation is asynchronous and failures are silent: a diagram that cannot
// be compiled is reported as Unavailable and simply does not appear. For any
// one diagram id, results are applied in request order; a result that
// arrives after a newer request for the same id is dropped.
package diagram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Status int

const (
	Pending Status = iota
	Ready
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = Pending
	case "ready":
		*s = Ready
	case "unavailable":
		*s = Unavailable
	default:
		return errors.New("unknown diagram status " + string(b))
	}
	return nil
}

type Diagram struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	SVG    string `json:"svg,omitempty"`
}

func (d Diagram) Available() bool { return d.Status == Ready && d.SVG != "" }

// NewID returns an identifier unique among concurrently displayed diagrams.
func NewID() string {
	return "diagram-" + uuid.NewString()
}

// Compiler turns mermaid source into raw SVG.
type Compiler interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}

type CompilerFunc func(ctx context.Context, source string) ([]byte, error)

func (f CompilerFunc) Compile(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}

type slot struct {
	gen     uint64
	current Diagram
}

// Renderer tracks one slot per diagram id on top of the process-wide engine.
type Renderer struct {
	eng *engine

	mu        sync.Mutex
	slots     map[string]*slot
	listeners []func(Diagram)

	// applied results waiting for listeners; one goroutine drains at a time
	queue    []Diagram
	draining bool
}

func NewRenderer() *Renderer {
	return &Renderer{
		eng:   current(),
		slots: make(map[string]*slot),
	}
}

// Subscribe registers fn for every applied result. Listeners see results in
// apply order and run outside the renderer lock, so a slow listener delays
// later deliveries but never Request, Result or Release.
func (r *Renderer) Subscribe(fn func(Diagram)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Request starts compiling source for id and marks the slot pending. The
// returned channel yields the result if it was applied, or is closed empty if
// a newer request for id superseded it. In-flight compiles are never
// cancelled by ctx; it only carries values.
func (r *Renderer) Request(ctx context.Context, id, source string) <-chan Diagram {
	ctx = context.WithoutCancel(ctx)
	out := make(chan Diagram, 1)

	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		s = &slot{}
		r.slots[id] = s
	}
	s.gen++
	gen := s.gen
	s.current = Diagram{ID: id, Status: Pending}
	r.mu.Unlock()

	go func() {
		defer close(out)
		d := r.eng.compile(ctx, source)
		d.ID = id
		if r.apply(id, gen, d) {
			out <- d
			r.deliver()
		}
	}()
	return out
}

// apply stores d if gen is still the newest request for id and queues it
// for listeners.
func (r *Renderer) apply(id string, gen uint64, d Diagram) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.gen != gen {
		return false
	}
	s.current = d
	if len(r.listeners) > 0 {
		r.queue = append(r.queue, d)
	}
	return true
}

// deliver hands queued results to listeners unless another goroutine is
// already doing so; that goroutine picks up whatever was queued meanwhile.
func (r *Renderer) deliver() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	for len(r.queue) > 0 {
		d := r.queue[0]
		r.queue[0] = Diagram{}
		r.queue = r.queue[1:]
		listeners := r.listeners
		r.mu.Unlock()
		for _, fn := range listeners {
			fn(d)
		}
		r.mu.Lock()
	}
	r.draining = false
	r.mu.Unlock()
}

// Render requests a compile and waits for it. If the request is superseded
// the slot's current state is returned; if ctx ends first the diagram is
// reported unavailable to the caller while the slot keeps waiting.
func (r *Renderer) Render(ctx context.Context, id, source string) Diagram {
	ch := r.Request(ctx, id, source)
	select {
	case d, ok := <-ch:
		if !ok {
			return r.Result(id)
		}
		return d
	case <-ctx.Done():
		return Diagram{ID: id, Status: Unavailable}
	}
}

// Result returns what is currently displayed for id.
func (r *Renderer) Result(id string) Diagram {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return Diagram{ID: id, Status: Unavailable}
	}
	return s.current
}

// Release forgets ids; results still in flight for them are dropped.
func (r *Renderer) Release(ids ...string) {
	r.mu.Lock()
	for _, id := range ids {
		delete(r.slots, id)
	}
	r.mu.Unlock()
}
