package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/status"
)

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText proxies one outbound message to the configured gateway. The gateway's verdict is
// relayed in the body with status 200; the caller classifies it.
func (h *Handler) SendText(c echo.Context) error {
	var req sendTextRequest
	if err := bind(c, "send text", &req); err != nil {
		return h.fail(c, "send text", err)
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		return h.fail(c, "send text", crmerr.Errorf(crmerr.Validation, "send text", "phone and message are required"))
	}

	res := h.Gateway.SendText(c.Request().Context(), req.Phone, req.Message)
	cat := gateway.Classify(res)
	h.Metrics.GatewaySend(string(cat))
	h.observe(cat)
	if !res.OK {
		h.Logger.Warn("gateway rejected send",
			zap.String("phone", req.Phone),
			zap.Int("status", res.Status),
			zap.String("category", string(cat)))
	}
	return c.JSON(http.StatusOK, res)
}

// observe folds a send outcome into the gateway state: connection-ish failures degrade a
// connected gateway and a success recovers it.
func (h *Handler) observe(cat gateway.Category) {
	if h.Machine == nil {
		return
	}
	switch cat {
	case gateway.CategoryNone:
		h.Machine.TransitionIf(status.Connected, status.Degraded)
	case gateway.CategoryNotConnected, gateway.CategoryNetwork, gateway.CategoryTimeout:
		h.Machine.TransitionIf(status.Degraded, status.Connected)
	}
}
