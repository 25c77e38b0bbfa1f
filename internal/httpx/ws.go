package httpx

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/avelez/packstation/internal/session"
)

var upgrader = websocket.Upgrader{
	// Terminals and the desktop UI connect from their own origins; the API
	// carries no credentials, so the origin check mirrors the HTTP surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes session snapshots to connected rendering clients. Register it
// as the session manager's change listener and every scan, reconciliation,
// and completion fans out to all open connections.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	// writeMu serialises frame writes: snapshots broadcast from both the scan
	// path and the subscription callback, and a websocket conn permits only
	// one concurrent writer.
	writeMu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS upgrades the connection, delivers the current snapshot, and keeps
// the client registered until it disconnects.
func (h *Hub) HandleWS(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		h.mu.Lock()
		h.clients[conn] = true
		h.mu.Unlock()

		// The client renders immediately instead of waiting for the next change.
		h.send(conn, sessions.Snapshot())

		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			// Clients never send application data; the read pump exists only
			// to detect disconnects and drain control frames.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// Broadcast pushes a snapshot to every connected client. A failed write
// drops that client; it reconnects and resyncs from the snapshot endpoint.
func (h *Hub) Broadcast(snap session.Snapshot) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.send(c, snap)
	}
}

func (h *Hub) send(conn *websocket.Conn, snap session.Snapshot) {
	h.writeMu.Lock()
	err := conn.WriteJSON(snap)
	h.writeMu.Unlock()
	if err != nil {
		slog.Warn("websocket push failed, dropping client", "error", err)
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}
}
