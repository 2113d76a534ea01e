// Package notify fans domain events out to members connected over websockets.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Hub tracks live connections per user.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

// NewHub builds a hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(r *http.Request) bool, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the request and streams events for userID until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}
	go c.writePump()
	c.readPump()
	return nil
}

// SendToUsers queues payload for every connection of the given users and
// returns the number of connections reached. Slow connections are dropped.
func (h *Hub) SendToUsers(userIDs []string, payload []byte) int {
	delivered := 0
	var slow []*client

	h.mu.RLock()
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for c := range h.clients[id] {
			select {
			case c.send <- payload:
				delivered++
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("user_id", c.userID))
		h.unregister(c)
	}
	return delivered
}

// Connections reports the number of live connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

// unregister closes the send channel under the write lock so no sender can race it.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	c.once.Do(func() { close(c.send) })
}

// readPump only services control frames; clients never send application data.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
