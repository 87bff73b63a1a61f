package watch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tutorbook/internal/diagram"
)

const (
	EventDiagram       = "diagram"
	EventAnswerChanged = "answer-changed"
)

type Event struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	SVG    string `json:"svg,omitempty"`
	Status string `json:"status,omitempty"`
	Path   string `json:"path,omitempty"`
}

// DiagramEvent carries a resolved diagram to the page that holds its
// placeholder. Unavailable diagrams are sent without SVG so the page can drop
// the placeholder.
func DiagramEvent(d diagram.Diagram) Event {
	ev := Event{Type: EventDiagram, ID: d.ID, Status: d.Status.String()}
	if d.Available() {
		ev.SVG = d.SVG
	}
	return ev
}

type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Localhost only by default; still allow browser connections.
		return true
	},
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	// Read loop: we don't handle client messages, but this detects disconnects.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, c)
			h.mu.Unlock()
			_ = c.Close()
		}()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients reports how many connections are open.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Broadcast(ev Event) {
	payload, _ := json.Marshal(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// Forward broadcasts every diagram r applies.
func (h *Hub) Forward(r *diagram.Renderer) {
	r.Subscribe(func(d diagram.Diagram) {
		h.Broadcast(DiagramEvent(d))
	})
}
