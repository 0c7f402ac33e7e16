package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 32
	writeWait         = 10 * time.Second
)

// Hub is the push-mode channel: one WebSocket per UI client, each with its
// own queue and writer goroutine. A client whose queue is full is dropped;
// events are never replayed.
type Hub struct {
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	sendBuffer     int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	ws   *websocket.Conn
	send chan Event
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

func NewHub(allowedOrigins []string) *Hub {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h := &Hub{
		allowedOrigins: origins,
		sendBuffer:     defaultSendBuffer,
		clients:        make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return h.allowedOrigins[origin]
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan Event, h.sendBuffer),
	}
	h.register(c)
	slog.Info("client connected", "client", c.id, "clients", h.Count())

	go h.writeLoop(c)

	// Clients never send events; reading only surfaces the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket closed unexpectedly", "client", c.id, "err", err)
			}
			break
		}
	}

	h.drop(c)
	slog.Info("client disconnected", "client", c.id)
}

func (h *Hub) writeLoop(c *client) {
	for ev := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(ev); err != nil {
			slog.Warn("websocket write failed", "client", c.id, "err", err)
			h.drop(c)
			return
		}
	}
}

// Publish queues ev for every connected client. Publish calls are
// serialized, so each client sees events in publish order.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slog.Warn("client too slow, dropping", "client", id)
			delete(h.clients, id)
			c.close()
		}
	}
	return nil
}

// Ping sends a control frame to every client and drops those that fail.
func (h *Hub) Ping(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range clients {
		if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}
