package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one gateway lifecycle event on the ops stream.
type Event struct {
	Seq     int       `json:"seq"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type watcher struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (w *watcher) send(ev Event) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.ws.WriteJSON(ev)
}

// EventHub broadcasts gateway events (callbacks handled, outbox
// transitions, alert runs) to connected monitoring clients. Watch-only:
// inbound frames are drained and ignored.
type EventHub struct {
	mu       sync.RWMutex
	watchers map[string]*watcher
	seq      int
}

func NewEventHub() *EventHub {
	return &EventHub{watchers: make(map[string]*watcher)}
}

// Publish broadcasts an event to all watchers. A failed write only drops
// that watcher's event; the connection is torn down by its read loop.
func (h *EventHub) Publish(kind string, payload any) {
	h.mu.Lock()
	h.seq++
	ev := Event{Seq: h.seq, Kind: kind, At: time.Now(), Payload: payload}
	watchers := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		watchers = append(watchers, w)
	}
	h.mu.Unlock()

	for _, w := range watchers {
		if err := w.send(ev); err != nil {
			slog.Debug("event broadcast failed", "watcher", w.id, "error", err)
		}
	}
}

// Count returns the number of connected watchers.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

func (h *EventHub) add(w *watcher) {
	h.mu.Lock()
	h.watchers[w.id] = w
	h.mu.Unlock()
}

func (h *EventHub) remove(id string) {
	h.mu.Lock()
	delete(h.watchers, id)
	h.mu.Unlock()
}

// ginEventStream upgrades to WebSocket and streams events until the
// client disconnects. Auth uses the same token as the ops API.
func (s *Server) ginEventStream(c *gin.Context) {
	if !s.authenticate(c.Query("token")) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	w := &watcher{
		id: fmt.Sprintf("watch_%d", time.Now().UnixNano()),
		ws: ws,
	}
	s.Events.add(w)
	defer s.Events.remove(w.id)

	slog.Info("ops watcher connected", "id", w.id)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			slog.Debug("ops watcher disconnected", "id", w.id, "error", err)
			return
		}
	}
}
