// Package api is the daemon's HTTP surface: the bulk fetch and persistence endpoints the
// dashboard reconciles against, the gateway proxy, conversation operations, the inbound
// webhook and the realtime upgrade.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/metrics"
	"github.com/matheus3301/wppcrm/internal/realtime"
	"github.com/matheus3301/wppcrm/internal/status"
	"github.com/matheus3301/wppcrm/internal/store"
)

// Pairer is implemented by gateway drivers that pair a device by QR code.
type Pairer interface {
	StartPairing(ctx context.Context) error
	IsLoggedIn() bool
	PhoneNumber() string
}

// Deps are the collaborators a Handler serves. DB may be nil, in which case routes that need
// the store answer 500 with an explanation.
type Deps struct {
	Instance string
	Driver   string
	DB       *store.DB
	Bus      *bus.Bus
	Ingest   *ingest.Engine
	Gateway  gateway.Sender
	Pairer   Pairer
	Machine  *status.Machine
	Auth     *auth.Service
	Limiter  *auth.LimiterPool
	Realtime *realtime.Server
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Handler handles HTTP requests.
type Handler struct {
	Deps
	startedAt time.Time

	qrMu   sync.RWMutex
	lastQR any
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHandler creates a new handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gateway == nil {
		d.Gateway = gateway.Unconfigured{}
	}
	d.Logger = d.Logger.Named("api")
	return &Handler{Deps: d, startedAt: time.Now()}
}

// NewEcho builds the echo instance with middleware and every route registered.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(AccessLog(h.Logger))
	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	var limited []echo.MiddlewareFunc
	if h.Limiter != nil {
		limited = append(limited, auth.RateLimit(h.Limiter))
	}

	// Public
	e.GET("/api/ping", h.Ping)
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()))
	}
	e.POST("/api/auth/login", h.Login, limited...)
	// Providers post from a handful of addresses; throttling them would drop inbound rows.
	e.POST("/api/zapi/webhook", h.Webhook)

	g := e.Group("/api")
	if h.Auth != nil {
		g.Use(auth.RequireToken(h.Auth))
	}
	g.POST("/auth/logout", h.Logout)
	g.GET("/status", h.Status)

	g.GET("/messages", h.ListMessages)
	g.POST("/messages", h.PersistMessage)
	g.GET("/messages/search", h.SearchMessages)

	g.POST("/gateway/send-text", h.SendText)
	g.GET("/gateway/qr", h.LastQR)
	g.POST("/gateway/pair", h.Pair, auth.RequireRole(auth.RoleAdmin))

	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/by-contact/:key", h.ConversationByContact)
	g.POST("/conversations/:id/toggle-bot", h.ToggleBot)
	g.POST("/conversations/:id/assign", h.Assign)
	g.POST("/conversations/:id/release", h.Release)
	g.POST("/conversations/:id/status", h.SetStatus)
	g.POST("/conversations/:id/tags", h.UpdateTags)

	g.POST("/contacts", h.CreateContact)
	g.PUT("/contacts/:id", h.EditContact)
	g.POST("/notes", h.AddNote)
	g.GET("/notes", h.ListNotes)

	if h.Realtime != nil {
		g.GET("/realtime", h.Realtime.Handle)
	}
}

// Start begins tracking pairing codes published on the bus.
func (h *Handler) Start(ctx context.Context) {
	if h.Bus == nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	ch, unsub := h.Bus.Subscribe(bus.KindGatewayQR, 16)
	go func() {
		defer close(h.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				h.qrMu.Lock()
				h.lastQR = evt.Payload
				h.qrMu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops tracking pairing codes.
func (h *Handler) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "data": data})
}

// fail answers with the status the error's kind maps to. Errors without a kind come from the
// store driver and are reported as persistence failures.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	if crmerr.KindOf(err) == "" {
		err = crmerr.E(crmerr.Persistence, op, err)
	}
	code := crmerr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("op", op), zap.String("path", c.Path()), zap.Error(err))
	} else {
		h.Logger.Debug("request rejected", zap.String("op", op), zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(code, map[string]any{"ok": false, "error": err.Error()})
}

var errNoStore = crmerr.Errorf(crmerr.NotConfigured, "store", "message store is not configured; set [store] path or WPPCRM_DB")

// requireStore returns the DB or the not-configured error.
func (h *Handler) requireStore() (*store.DB, error) {
	if h.DB == nil {
		return nil, errNoStore
	}
	return h.DB, nil
}

func bind(c echo.Context, op string, v any) error {
	if err := c.Bind(v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return crmerr.Errorf(crmerr.Validation, op, "invalid request body: %v", he.Message)
		}
		return crmerr.E(crmerr.Validation, op, err)
	}
	return nil
}
