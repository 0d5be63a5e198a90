package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/showfloor/cybergenesis/internal/event"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	maxMessageSize = 512
)

// Hub fans the in-process change feed out to websocket clients. Every
// display, phone and spectator screen holds one connection scoped to a
// session. A slow client gets dropped rather than backing up the feed.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(eb *event.Bus) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are static pages served from anywhere during a show.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]map[*client]struct{}),
	}

	for _, name := range feedEvents {
		name := name
		eb.Subscribe(name, func(ctx context.Context, e event.Event) error {
			sessionID, n, ok := notification(name, e)
			if !ok {
				return nil
			}
			return h.broadcast(ctx, sessionID, n)
		})
	}

	return h
}

// Handle upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) Handle(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "ws: upgrade failed", "error", err)
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.register(sessionID, cl)
	go cl.writePump()
	go func() {
		defer h.unregister(sessionID, cl)
		cl.readPump()
	}()
}

func (h *Hub) register(sessionID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*client]struct{})
	}
	h.sessions[sessionID][cl] = struct{}{}
}

func (h *Hub) unregister(sessionID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessions[sessionID]; ok {
		if _, ok := clients[cl]; ok {
			delete(clients, cl)
			close(cl.send)
		}
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, sessionID string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.sessions[sessionID]))
	for cl := range h.sessions[sessionID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		select {
		case cl.send <- b:
		default:
			// Buffer full: the client stopped reading. Drop it.
			slog.WarnContext(ctx, "ws: dropping slow client", "session", sessionID)
			h.unregister(sessionID, cl)
		}
	}
	return nil
}

func (cl *client) writePump() {
	defer cl.conn.Close()

	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	cl.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readPump discards inbound frames; the feed is one-way. It returns when
// the peer closes.
func (cl *client) readPump() {
	cl.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
