package realtime

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/metrics"
)

// sendBuffer is how many frames may queue for one slow client before it is dropped.
const sendBuffer = 256

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to every connected client.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	quit       chan struct{}
	mu         sync.RWMutex
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		quit:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run is the hub's main loop. When ctx ends every client's send channel is closed, which
// makes its writer send a close frame.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.metrics.RealtimeClients(1)
			h.logger.Debug("realtime client connected", zap.String("remote", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			h.remove(c)

		case data := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn("realtime client too slow, dropping", zap.String("remote", c.conn.RemoteAddr().String()))
				h.remove(c)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				h.metrics.RealtimeClients(-1)
			}
			h.mu.Unlock()
			return
		}
	}
}

// join registers c. It reports false once the hub has stopped.
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RealtimeClients(-1)
}

// Broadcast queues a frame for every client. It never blocks; a full queue drops the frame
// and subscribers recover on their next refresh.
func (h *Hub) Broadcast(data []byte) bool {
	select {
	case h.broadcast <- data:
		return true
	default:
		h.logger.Warn("realtime broadcast queue full, frame dropped")
		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
