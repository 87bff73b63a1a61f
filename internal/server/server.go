package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tutorbook/internal/answer"
	"tutorbook/internal/backend"
	"tutorbook/internal/history"
	"tutorbook/internal/logger"
	"tutorbook/internal/render"
	"tutorbook/internal/watch"
	"tutorbook/internal/web"
)

// Answerer is the question-answering service.
type Answerer interface {
	Ask(ctx context.Context, q answer.Question) (answer.Response, error)
	Options(ctx context.Context) answer.Options
	Health(ctx context.Context) error
}

type HistoryStore interface {
	Add(ctx context.Context, e answer.HistoryEntry) (answer.HistoryEntry, error)
	List(ctx context.Context, limit int) ([]answer.HistoryEntry, error)
	Get(ctx context.Context, id int64) (answer.HistoryEntry, error)
	Clear(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) (history.SearchResponse, error)
}

type Options struct {
	Backend  Answerer
	History  HistoryStore
	Composer *render.Composer
	Logger   *logger.Logger

	// PreviewFile, when set, serves that markdown file at /api/preview and
	// broadcasts answer-changed whenever it is saved.
	PreviewFile string
	// PreviewMeta fills the tag header of the previewed file.
	PreviewMeta answer.Response
}

type Server struct {
	backend  Answerer
	history  HistoryStore
	composer *render.Composer
	log      *logger.Logger
	hub      *watch.Hub
	watcher  *watch.Watcher

	previewAbs  string
	previewMeta answer.Response

	mu      sync.Mutex
	current *render.View
}

type viewResponse struct {
	EntryID int64        `json:"entry_id,omitempty"`
	View    *render.View `json:"view"`
}

func New(opts Options) (*Server, error) {
	if opts.Composer == nil {
		opts.Composer = render.New(render.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	hub := watch.NewHub()
	hub.Forward(opts.Composer.Diagrams())

	s := &Server{
		backend:     opts.Backend,
		history:     opts.History,
		composer:    opts.Composer,
		log:         opts.Logger,
		hub:         hub,
		previewMeta: opts.PreviewMeta,
	}

	if opts.PreviewFile != "" {
		abs, err := filepath.Abs(opts.PreviewFile)
		if err != nil {
			return nil, err
		}
		w, err := watch.NewWatcher(abs, hub, func() {
			s.log.Debug("answer file changed", "path", abs)
		})
		if err != nil {
			return nil, err
		}
		s.previewAbs = abs
		s.watcher = w
	}

	return s, nil
}

func (s *Server) Close() error {
	s.reset()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// App assets (embedded)
	mux.HandleFunc("/app/chroma.css", s.handleChromaCSS)
	mux.Handle("/app/", http.StripPrefix("/app/", http.FileServer(web.FS())))

	// API
	mux.HandleFunc("/api/options", s.handleOptions)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/{id}", s.handleHistoryEntry)
	mux.HandleFunc("/api/diagram/{id}", s.handleDiagram)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/preview", s.handlePreview)

	// WebSocket
	mux.HandleFunc("/ws", s.hub.ServeWS)

	mux.HandleFunc("/", s.handleIndex)

	return mux
}

// show makes v the displayed view, resetting whatever was shown before so its
// pending diagrams are released.
func (s *Server) show(v *render.View) {
	s.mu.Lock()
	prev := s.current
	s.current = v
	s.mu.Unlock()
	if prev != nil && prev != v {
		prev.Reset()
	}
}

func (s *Server) reset() {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Reset()
	}
}

func (s *Server) compose(r *http.Request, resp answer.Response) *render.View {
	v := s.composer.Compose(r.Context(), resp, render.ComposeOptions{
		Diagrams: render.DiagramsDeferred,
		OnReset: func() {
			s.log.Debug("view reset")
		},
	})
	// The response is encoded from a copy; a later request may reset v.
	snap := *v
	s.show(v)
	return &snap
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	web.ServeIndex(w, r)
}

func (s *Server) handleChromaCSS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dark := r.URL.Query().Get("theme") == "dark"
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := s.composer.Code().CSS(w, dark); err != nil {
		s.log.Warn("chroma css", "error", err)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.backend == nil {
		writeJSON(w, answer.FallbackOptions())
		return
	}
	writeJSON(w, s.backend.Options(r.Context()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.backend == nil {
		http.Error(w, "no backend configured", http.StatusServiceUnavailable)
		return
	}

	var q answer.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := q.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.backend.Ask(r.Context(), q)
	if err != nil {
		s.log.Error("ask failed", "error", err, "subject", q.Subject)
		if errors.Is(err, backend.ErrBackend) {
			http.Error(w, "Failed to get answer. Please try again.", http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := viewResponse{}
	if s.history != nil {
		e, err := s.history.Add(r.Context(), answer.NewHistoryEntry(q, resp, time.Time{}))
		if err != nil {
			s.log.Warn("history add failed", "error", err)
		} else {
			out.EntryID = e.ID
		}
	}
	out.View = s.compose(r, resp)
	writeJSON(w, out)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp answer.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := resp.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, viewResponse{View: s.compose(r, resp)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusNotImplemented)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if q := r.URL.Query().Get("q"); q != "" {
			res, err := s.history.Search(r.Context(), q, 200)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, res)
			return
		}
		entries, err := s.history.List(r.Context(), 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	case http.MethodDelete:
		if err := s.history.Clear(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHistoryEntry re-renders a stored answer as if it had just arrived.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusNotImplemented)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	e, err := s.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Entry answer.HistoryEntry `json:"entry"`
		View  *render.View        `json:"view"`
	}{Entry: e, View: s.compose(r, e.Response())})
}

// handleDiagram lets a client that missed the websocket event poll instead.
func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.composer.Diagrams().Result(r.PathValue("id")))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.backend == nil {
		writeJSON(w, map[string]string{"status": "ok", "backend": "none"})
		return
	}
	if err := s.backend.Health(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "backend": "unreachable"})
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "backend": "healthy"})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.previewAbs == "" {
		http.NotFound(w, r)
		return
	}
	v, err := s.composer.ComposeFile(r.Context(), s.previewAbs, s.previewMeta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, viewResponse{View: v})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
