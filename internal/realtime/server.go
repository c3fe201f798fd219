package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 4096
)

// Server turns message.inserted bus events into insert frames and serves the websocket
// endpoint.
type Server struct {
	hub      *Hub
	bus      *bus.Bus
	upgrader websocket.Upgrader
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer creates a realtime server on top of hub.
func NewServer(h *Hub, b *bus.Bus, logger *zap.Logger) *Server {
	return &Server{
		hub:    h,
		bus:    b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients authenticate with a bearer token, not cookies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub and forwards every stored row to it.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	ch, unsub := s.bus.Subscribe(bus.KindMessageInserted, 256)

	go s.hub.Run(ctx)
	go func() {
		defer close(s.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				m, ok := evt.Payload.(store.Message)
				if !ok {
					continue
				}
				data, err := EncodeInsert(m)
				if err != nil {
					s.logger.Error("failed to encode insert frame", zap.Error(err))
					continue
				}
				s.hub.Broadcast(data)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop disconnects all clients and stops forwarding.
func (s *Server) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Handle upgrades the request and starts the connection pumps.
func (s *Server) Handle(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	cl := &client{conn: ws, send: make(chan []byte, sendBuffer)}
	if !s.hub.join(cl) {
		_ = ws.Close()
		return nil
	}

	go s.writePump(cl)
	go s.readPump(cl)
	return nil
}

// readPump only services control frames; the feed is one-way.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("realtime read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Clients returns the number of connected subscribers.
func (s *Server) Clients() int {
	return s.hub.Clients()
}
