package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/config"
)

// Server manages the HTTP server lifecycle for an instance daemon.
type Server struct {
	echo     *echo.Echo
	listener net.Listener
	logger   *zap.Logger
}

// NewServer binds the configured address and registers every API route. Binding happens here
// so a busy port fails startup instead of surfacing later from a goroutine.
func NewServer(cfg *config.Config, h *api.Handler, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	return &Server{
		echo:     api.NewEcho(h),
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.listener.Addr().String()))
	if err := s.echo.Server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	err := s.echo.Shutdown(ctx)
	_ = s.listener.Close()
	return err
}
