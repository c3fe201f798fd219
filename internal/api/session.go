package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/crmerr"
)

// Ping is the liveness probe.
func (h *Handler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "ping"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginUser is the user summary returned by login.
type LoginUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	User      LoginUser `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges credentials for a bearer token.
func (h *Handler) Login(c echo.Context) error {
	if h.Auth == nil {
		return h.fail(c, "login", errNoStore)
	}
	var req loginRequest
	if err := bind(c, "login", &req); err != nil {
		return h.fail(c, "login", err)
	}
	sess, err := h.Auth.Login(req.Email, req.Password)
	if err != nil {
		return h.fail(c, "login", err)
	}
	return c.JSON(http.StatusOK, LoginResponse{
		Token:     sess.Token,
		User:      LoginUser{Name: sess.User.Name, Email: sess.User.Email, Role: sess.User.Role},
		ExpiresAt: sess.ExpiresAt,
	})
}

// Logout revokes the caller's token.
func (h *Handler) Logout(c echo.Context) error {
	if h.Auth == nil {
		return h.fail(c, "logout", errNoStore)
	}
	token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err := h.Auth.Logout(token); err != nil {
		return h.fail(c, "logout", err)
	}
	return ok(c, nil)
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Instance        string    `json:"instance"`
	Driver          string    `json:"driver"`
	State           string    `json:"state"`
	StateSince      time.Time `json:"stateSince"`
	UptimeMs        int64     `json:"uptimeMs"`
	Messages        int64     `json:"messages"`
	RealtimeClients int       `json:"realtimeClients"`
	Phone           string    `json:"phone,omitempty"`
	LoggedIn        bool      `json:"loggedIn"`
	User            string    `json:"user,omitempty"`
}

// Status reports the gateway state and store counters.
func (h *Handler) Status(c echo.Context) error {
	resp := StatusResponse{
		Instance: h.Instance,
		Driver:   h.Driver,
		UptimeMs: time.Since(h.startedAt).Milliseconds(),
		LoggedIn: true,
	}
	if h.Machine != nil {
		resp.State = string(h.Machine.Current())
		resp.StateSince = h.Machine.Since()
	}
	if h.DB != nil {
		if n, err := h.DB.MessageCount(); err == nil {
			resp.Messages = n
		}
	}
	if h.Realtime != nil {
		resp.RealtimeClients = h.Realtime.Clients()
	}
	if h.Pairer != nil {
		resp.Phone = h.Pairer.PhoneNumber()
		resp.LoggedIn = h.Pairer.IsLoggedIn()
	}
	if u := auth.UserFrom(c); u != nil {
		resp.User = u.Email
	}
	return ok(c, resp)
}

// Pair starts QR pairing on drivers that support it. Codes are read back through LastQR.
func (h *Handler) Pair(c echo.Context) error {
	if h.Pairer == nil {
		return h.fail(c, "pair", crmerr.Errorf(crmerr.Validation, "pair", "gateway driver %q does not pair by QR code", h.Driver))
	}
	if err := h.Pairer.StartPairing(c.Request().Context()); err != nil {
		return h.fail(c, "pair", crmerr.E(crmerr.Validation, "pair", err))
	}
	return c.JSON(http.StatusAccepted, map[string]any{"ok": true})
}

// LastQR returns the most recent pairing event, or 404 when pairing never started.
func (h *Handler) LastQR(c echo.Context) error {
	h.qrMu.RLock()
	last := h.lastQR
	h.qrMu.RUnlock()
	if last == nil {
		return h.fail(c, "qr", crmerr.Errorf(crmerr.NotFound, "qr", "no pairing in progress"))
	}
	return ok(c, last)
}
