package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/metrics"
	"github.com/matheus3301/wppcrm/internal/store"
)

// Webhook receives inbound messages from the gateway provider. A store without the messages
// table (a fresh dev environment) still answers 200 so the provider does not keep retrying.
func (h *Handler) Webhook(c echo.Context) error {
	var payload map[string]any
	if err := bind(c, "webhook", &payload); err != nil {
		h.Metrics.WebhookRow(metrics.WebhookRejected)
		return h.fail(c, "webhook", err)
	}
	h.Logger.Debug("webhook received", zap.Any("payload", payload))

	in, err := ingest.FromWebhook(payload)
	if err != nil {
		h.Metrics.WebhookRow(metrics.WebhookRejected)
		return c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "reason": "missing phone or message"})
	}
	if h.Ingest == nil || h.DB == nil {
		h.Metrics.WebhookRow(metrics.WebhookFailed)
		return h.fail(c, "webhook", errNoStore)
	}

	if _, err := h.Ingest.Ingest(in); err != nil {
		if store.IsMissingTable(err) {
			h.Metrics.WebhookRow(metrics.WebhookDegraded)
			h.Logger.Warn("messages table missing, webhook payload accepted without storing", zap.String("phone", in.Phone))
			return c.JSON(http.StatusOK, map[string]any{"ok": true, "stored": false})
		}
		h.Metrics.WebhookRow(metrics.WebhookFailed)
		return h.fail(c, "webhook", err)
	}
	h.Metrics.WebhookRow(metrics.WebhookAccepted)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "stored": true})
}
