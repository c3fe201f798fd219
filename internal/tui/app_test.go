package tui

import (
	"context"
	"testing"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/store"
	"github.com/matheus3301/wppcrm/internal/tui/client"
	"github.com/matheus3301/wppcrm/internal/tui/model"
)

type stubBackend struct {
	state string
	rows  []normalize.Row
}

func (b *stubBackend) SendText(context.Context, string, string) gateway.Result {
	return gateway.Result{OK: true, Status: 200}
}
func (b *stubBackend) FetchMessages(context.Context, string, int) ([]normalize.Row, error) {
	return b.rows, nil
}
func (b *stubBackend) Persist(context.Context, ingest.Outbound) (normalize.Row, error) {
	return normalize.Row{}, nil
}
func (b *stubBackend) Status(context.Context) (*api.StatusResponse, error) {
	return &api.StatusResponse{Instance: "main", Driver: "whatsmeow", State: b.state}, nil
}
func (b *stubBackend) Conversations(context.Context) ([]store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) ConversationByContact(context.Context, string) (*store.Conversation, error) {
	return nil, crmerr.E(crmerr.NotFound, "conversation", nil)
}
func (b *stubBackend) ToggleBot(context.Context, int64, bool) (*store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) Assign(context.Context, int64, string) (*store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) Release(context.Context, int64) (*store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) SetStatus(context.Context, int64, string) (*store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) SetTags(context.Context, int64, []string) (*store.Conversation, error) {
	return nil, nil
}
func (b *stubBackend) Search(context.Context, string, int) ([]store.SearchResult, error) {
	return nil, nil
}

type stubOperator struct{}

func (stubOperator) AddNote(context.Context, int64, string) (*store.Note, error) { return nil, nil }
func (stubOperator) Notes(context.Context, int64) ([]store.Note, error)          { return nil, nil }
func (stubOperator) Pair(context.Context) error                                  { return nil }
func (stubOperator) LastQR(context.Context) (*client.QRCode, error)              { return nil, nil }
func (stubOperator) Logout(context.Context) error                                { return nil }

func newTestApp(t *testing.T, b *stubBackend) *App {
	t.Helper()
	vm := model.NewViewModel(b, model.Options{})
	return NewApp(vm, stubOperator{}, Options{User: "Ana"})
}

func TestConversationCommandNeedsSelection(t *testing.T) {
	a := newTestApp(t, &stubBackend{state: "CONNECTED"})

	a.runCommand(Command{Name: "status", Args: "closed"})
	text, level := a.vm.Flash.Get()
	if text != "open a conversation first" || level != model.FlashWarn {
		t.Errorf("flash = %q (%d)", text, level)
	}
}

func TestAuthRequiredOpensPairingOnce(t *testing.T) {
	b := &stubBackend{state: "AUTH_REQUIRED"}
	a := newTestApp(t, b)
	if err := a.vm.LoadStatus(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.render()
	if got := a.pages.Current(); got != pageAuth {
		t.Fatalf("current page = %q, want %q", got, pageAuth)
	}

	a.back()
	a.render()
	if got := a.pages.Current(); got != pageConversations {
		t.Errorf("pairing reopened after dismissal: %q", got)
	}

	b.state = "CONNECTED"
	_ = a.vm.LoadStatus(context.Background())
	a.render()
	b.state = "AUTH_REQUIRED"
	_ = a.vm.LoadStatus(context.Background())
	a.render()
	if got := a.pages.Current(); got != pageAuth {
		t.Errorf("a new pairing requirement did not open the page: %q", got)
	}
}

func TestListShowsFetchedConversations(t *testing.T) {
	b := &stubBackend{state: "CONNECTED", rows: []normalize.Row{
		{"id": 1, "phone": "5511", "message": "oi", "name": "Ana", "created_at": "2024-05-01T10:00:00Z"},
		{"id": 2, "phone": "5522", "message": "hello", "created_at": "2024-05-01T11:00:00Z"},
	}}
	a := newTestApp(t, b)
	if err := a.vm.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.render()

	if got := a.list.KeyByIndex(1); got != "5522" {
		t.Errorf("first row = %q, want the most recent contact", got)
	}
	if c, ok := a.findConversation("ana"); !ok || c.ContactKey != "5511" {
		t.Errorf("findConversation(ana) = %+v, %v", c, ok)
	}
}
