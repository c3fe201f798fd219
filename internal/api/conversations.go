package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/store"
)

func pathID(c echo.Context, op string) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, crmerr.Errorf(crmerr.Validation, op, "invalid id %q", c.Param("id"))
	}
	return id, nil
}

// ListConversations returns the newest conversation records.
func (h *Handler) ListConversations(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "list conversations", err)
	}
	convs, err := db.ListConversations(queryLimit(c, 200))
	if err != nil {
		return h.fail(c, "list conversations", crmerr.E(crmerr.Fetch, "list conversations", err))
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	return ok(c, convs)
}

// ConversationByContact returns the record for a contact key. Contacts that have no record yet
// get an unsaved open placeholder, so the dashboard can render its info pane.
func (h *Handler) ConversationByContact(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "get conversation", err)
	}
	key := c.Param("key")
	conv, err := db.ConversationByPhone(key)
	if err != nil {
		return h.fail(c, "get conversation", crmerr.E(crmerr.Fetch, "get conversation", err))
	}
	if conv == nil {
		conv = &store.Conversation{Phone: key, Status: store.StatusOpen, Tags: []string{}}
	}
	return ok(c, conv)
}

// updateConversation runs one conversation mutation and answers with the updated record.
func (h *Handler) updateConversation(c echo.Context, op string, req any, apply func(db *store.DB, id int64) (*store.Conversation, error)) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, op, err)
	}
	id, err := pathID(c, op)
	if err != nil {
		return h.fail(c, op, err)
	}
	if req != nil {
		if err := bind(c, op, req); err != nil {
			return h.fail(c, op, err)
		}
	}
	conv, err := apply(db, id)
	if err != nil {
		return h.fail(c, op, err)
	}
	return ok(c, conv)
}

// ToggleBot sets whether the automated responder handles a conversation.
func (h *Handler) ToggleBot(c echo.Context) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	return h.updateConversation(c, "toggle bot", &req, func(db *store.DB, id int64) (*store.Conversation, error) {
		if req.Enabled == nil {
			return nil, crmerr.Errorf(crmerr.Validation, "toggle bot", "enabled boolean required")
		}
		return db.SetBotEnabled(id, *req.Enabled)
	})
}

// Assign hands a conversation to an operator. Without a user in the body it is assigned to
// the caller.
func (h *Handler) Assign(c echo.Context) error {
	var req struct {
		User string `json:"user"`
	}
	return h.updateConversation(c, "assign", &req, func(db *store.DB, id int64) (*store.Conversation, error) {
		if req.User == "" {
			if u := auth.UserFrom(c); u != nil {
				req.User = u.Name
			}
		}
		return db.Assign(id, req.User, time.Now())
	})
}

// Release clears the assignee.
func (h *Handler) Release(c echo.Context) error {
	return h.updateConversation(c, "release", nil, func(db *store.DB, id int64) (*store.Conversation, error) {
		return db.Release(id)
	})
}

// SetStatus moves a conversation to open, pending or closed.
func (h *Handler) SetStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	return h.updateConversation(c, "set status", &req, func(db *store.DB, id int64) (*store.Conversation, error) {
		return db.SetStatus(id, req.Status)
	})
}

// UpdateTags replaces a conversation's tags.
func (h *Handler) UpdateTags(c echo.Context) error {
	var req struct {
		Tags []string `json:"tags"`
	}
	return h.updateConversation(c, "update tags", &req, func(db *store.DB, id int64) (*store.Conversation, error) {
		return db.SetTags(id, req.Tags)
	})
}
