package replier

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/concierge/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// HubMessage is the frame pushed to websocket listeners.
type HubMessage struct {
	BusinessID string    `json:"business_id"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// Hub pushes replies to websocket connections keyed by session.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[string]map[*hubConn]struct{}
	logger   *slog.Logger
}

type hubConn struct {
	ws   *websocket.Conn
	send chan HubMessage
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[string]map[*hubConn]struct{}),
		logger: logger.With("component", "hub"),
	}
}

// Serve upgrades the request and streams replies for the given user
// until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, businessID, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	key := session.Key(businessID, userID)
	c := &hubConn{ws: ws, send: make(chan HubMessage, 16)}
	h.add(key, c)
	h.logger.Debug("listener connected", "session", key)

	go h.writeLoop(c)
	h.readLoop(c)

	h.remove(key, c)
	close(c.send)
	h.logger.Debug("listener disconnected", "session", key)
}

// readLoop consumes control frames until the peer goes away.
func (h *Hub) readLoop(c *hubConn) {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(key string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[key] == nil {
		h.conns[key] = make(map[*hubConn]struct{})
	}
	h.conns[key][c] = struct{}{}
}

func (h *Hub) remove(key string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[key], c)
	if len(h.conns[key]) == 0 {
		delete(h.conns, key)
	}
}

// Listeners reports how many connections follow a user.
func (h *Hub) Listeners(businessID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[session.Key(businessID, userID)])
}

// SendReply implements Replier. Slow listeners miss messages rather
// than block the turn. No listeners is not an error.
func (h *Hub) SendReply(_ context.Context, businessID, userID, text string) error {
	msg := HubMessage{BusinessID: businessID, UserID: userID, Text: text, SentAt: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[session.Key(businessID, userID)] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("listener too slow, reply dropped", "user", userID)
		}
	}
	return nil
}
