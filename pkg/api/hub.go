package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/traceon/traceond/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

// Hub tracks connected dashboard clients so shutdown can disconnect
// them all and the client gauge stays honest
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client

	mu sync.RWMutex
}

// NewHub creates an empty hub; call Run before serving
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run is the hub's registration loop
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				metrics.WebsocketClients.Dec()
			}
			h.mu.Unlock()
		}
	}
}

// CloseAll disconnects every client, used at shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		metrics.WebsocketClients.Dec()
	}
}

// client is one dashboard websocket connection
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// trySend queues a message, dropping it when the client is gone or
// cannot keep up. The hub lock orders sends against channel close.
func (c *client) trySend(message []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		println("DEBUG trySend: client not registered, dropping", len(message))
		return
	}
	select {
	case c.send <- message:
		println("DEBUG trySend: queued", len(message))
	default:
		println("DEBUG trySend: buffer full, dropping", len(message))
		metrics.SnapshotsDropped.Inc()
	}
}

// readPump consumes control frames until the peer goes away
func (c *client) readPump(done chan<- struct{}) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(done)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes queued messages and keepalive pings to the peer
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
