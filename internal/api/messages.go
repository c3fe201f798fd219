package api

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/store"
)

func queryLimit(c echo.Context, def int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}

// ListMessages is the bulk fetch: the newest rows, optionally for one contact, oldest first.
func (h *Handler) ListMessages(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "list messages", err)
	}
	msgs, err := db.ListMessages(c.QueryParam("contact"), queryLimit(c, store.DefaultFetchLimit))
	if err != nil {
		return h.fail(c, "list messages", crmerr.E(crmerr.Fetch, "list messages", err))
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return ok(c, msgs)
}

// PersistMessage stores an operator-authored message. Repeating a clientMessageId returns the
// row already stored.
func (h *Handler) PersistMessage(c echo.Context) error {
	if h.Ingest == nil || h.DB == nil {
		return h.fail(c, "persist message", errNoStore)
	}
	var req ingest.Outbound
	if err := bind(c, "persist message", &req); err != nil {
		return h.fail(c, "persist message", err)
	}
	if req.Source == "" {
		req.Source = ingest.SourceDashboard
	}
	m, err := h.Ingest.Persist(req)
	if err != nil {
		return h.fail(c, "persist message", err)
	}
	return ok(c, m)
}

// SearchMessages runs a full-text query over message bodies.
func (h *Handler) SearchMessages(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "search messages", err)
	}
	q := c.QueryParam("q")
	if q == "" {
		return h.fail(c, "search messages", crmerr.Errorf(crmerr.Validation, "search messages", "q is required"))
	}
	results, err := db.SearchMessages(q, queryLimit(c, 50))
	if errors.Is(err, store.ErrBadQuery) {
		return h.fail(c, "search messages", crmerr.E(crmerr.Validation, "search messages", err))
	}
	if err != nil {
		return h.fail(c, "search messages", crmerr.E(crmerr.Fetch, "search messages", err))
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return ok(c, results)
}
