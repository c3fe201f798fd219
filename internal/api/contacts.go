package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/store"
)

type contactRequest struct {
	Phone string   `json:"phone"`
	Name  *string  `json:"name"`
	Notes *string  `json:"notes"`
	Tags  []string `json:"tags"`
}

// CreateContact inserts or replaces the contact for a phone number.
func (h *Handler) CreateContact(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "create contact", err)
	}
	var req contactRequest
	if err := bind(c, "create contact", &req); err != nil {
		return h.fail(c, "create contact", err)
	}
	ct := &store.Contact{Phone: req.Phone, Tags: req.Tags}
	if req.Name != nil {
		ct.Name = *req.Name
	}
	if req.Notes != nil {
		ct.Notes = *req.Notes
	}
	saved, err := db.UpsertContact(ct)
	if err != nil {
		return h.fail(c, "create contact", err)
	}
	return ok(c, saved)
}

// EditContact patches name, notes or tags. Omitted fields are kept.
func (h *Handler) EditContact(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "edit contact", err)
	}
	id, err := pathID(c, "edit contact")
	if err != nil {
		return h.fail(c, "edit contact", err)
	}
	var req contactRequest
	if err := bind(c, "edit contact", &req); err != nil {
		return h.fail(c, "edit contact", err)
	}
	saved, err := db.UpdateContact(id, store.ContactPatch{Name: req.Name, Notes: req.Notes, Tags: req.Tags})
	if err != nil {
		return h.fail(c, "edit contact", err)
	}
	return ok(c, saved)
}

type noteRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Author         string `json:"author"`
	Text           string `json:"text"`
}

// AddNote attaches an internal note to a conversation. The author defaults to the caller.
func (h *Handler) AddNote(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "add note", err)
	}
	var req noteRequest
	if err := bind(c, "add note", &req); err != nil {
		return h.fail(c, "add note", err)
	}
	if req.Author == "" {
		if u := auth.UserFrom(c); u != nil {
			req.Author = u.Name
		}
	}
	note, err := db.AddNote(req.ConversationID, req.Author, req.Text)
	if err != nil {
		return h.fail(c, "add note", err)
	}
	return ok(c, note)
}

// ListNotes returns a conversation's notes, newest first.
func (h *Handler) ListNotes(c echo.Context) error {
	db, err := h.requireStore()
	if err != nil {
		return h.fail(c, "list notes", err)
	}
	id, err := strconv.ParseInt(c.QueryParam("conversation_id"), 10, 64)
	if err != nil || id <= 0 {
		return h.fail(c, "list notes", crmerr.Errorf(crmerr.Validation, "list notes", "conversation_id required"))
	}
	notes, err := db.ListNotes(id)
	if err != nil {
		return h.fail(c, "list notes", crmerr.E(crmerr.Fetch, "list notes", err))
	}
	if notes == nil {
		notes = []store.Note{}
	}
	return ok(c, notes)
}
