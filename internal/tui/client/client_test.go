package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/store"
)

func newBackend(t *testing.T, sender gateway.Sender) (*httptest.Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	authSvc := auth.NewService(db, time.Hour)
	_, err = authSvc.CreateUser("ana@example.com", "Ana", auth.RoleAgent, "pw")
	require.NoError(t, err)

	h := api.NewHandler(api.Deps{
		DB:      db,
		Bus:     b,
		Ingest:  ingest.NewEngine(db, b, nil, nil),
		Gateway: sender,
		Auth:    authSvc,
	})
	srv := httptest.NewServer(api.NewEcho(h))
	t.Cleanup(srv.Close)
	return srv, db
}

func loggedIn(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(&config.Session{BaseURL: srv.URL}, time.Second)
	resp, err := c.Login(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Ana", resp.User.Name)
	assert.Equal(t, resp.Token, c.Session().Token)
	assert.Equal(t, "agent", c.Session().Role)
	return c
}

func TestLoginFailureKinds(t *testing.T) {
	srv, _ := newBackend(t, gateway.Unconfigured{})
	c := New(&config.Session{BaseURL: srv.URL}, time.Second)

	_, err := c.Login(context.Background(), "ana@example.com", "wrong")
	assert.True(t, crmerr.IsKind(err, crmerr.Unauthorized), "got %v", err)

	_, err = c.Login(context.Background(), "", "")
	assert.True(t, crmerr.IsKind(err, crmerr.Validation), "got %v", err)

	_, err = c.Status(context.Background())
	assert.True(t, crmerr.IsKind(err, crmerr.Unauthorized), "routes need a token")
}

func TestPersistAndFetch(t *testing.T) {
	srv, _ := newBackend(t, gateway.Unconfigured{})
	c := loggedIn(t, srv)
	ctx := context.Background()

	row, err := c.Persist(ctx, ingest.Outbound{ClientMessageID: "cid-1", ContactKey: "5511", Text: "oi", FromMe: true})
	require.NoError(t, err)
	assert.Equal(t, "cid-1", row["client_message_id"])

	rows, err := c.FetchMessages(ctx, "5511", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	msg := normalize.New(time.UTC).Normalize(rows[0])
	assert.Equal(t, "oi", msg.Text)
	assert.Equal(t, "cid-1", msg.ClientMessageID)
	assert.Equal(t, normalize.SenderAgent, msg.Sender)
	assert.False(t, msg.Optimistic())

	_, err = c.Persist(ctx, ingest.Outbound{ContactKey: "5511"})
	assert.True(t, crmerr.IsKind(err, crmerr.Validation), "got %v", err)

	results, err := c.Search(ctx, "oi", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSendTextRelaysResult(t *testing.T) {
	srv, _ := newBackend(t, gateway.SenderFunc(func(context.Context, string, string) gateway.Result {
		return gateway.Result{OK: false, Status: 404, BodyText: "no whatsapp"}
	}))
	c := loggedIn(t, srv)

	res := c.SendText(context.Background(), "5511", "oi")
	assert.False(t, res.OK)
	assert.Equal(t, 404, res.Status)
	assert.Equal(t, gateway.CategoryInvalidNumber, gateway.Classify(res))
}

func TestSendTextNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(&config.Session{BaseURL: srv.URL, Token: "t"}, time.Second)
	res := c.SendText(context.Background(), "5511", "oi")
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.Status)
	assert.Contains(t, res.BodyText, "network error")
}

func TestConversationOps(t *testing.T) {
	srv, db := newBackend(t, gateway.Unconfigured{})
	c := loggedIn(t, srv)
	ctx := context.Background()

	placeholder, err := c.ConversationByContact(ctx, "5511")
	require.NoError(t, err)
	assert.Zero(t, placeholder.ID)
	assert.Equal(t, store.StatusOpen, placeholder.Status)

	conv, err := db.EnsureConversation("5511", "Bia")
	require.NoError(t, err)

	got, err := c.ToggleBot(ctx, conv.ID, true)
	require.NoError(t, err)
	assert.True(t, got.BotEnabled)

	got, err = c.Assign(ctx, conv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.AssignedTo)

	got, err = c.SetTags(ctx, conv.ID, []string{"vip"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, got.Tags)

	_, err = c.SetStatus(ctx, conv.ID, "archived")
	assert.True(t, crmerr.IsKind(err, crmerr.Validation))

	_, err = c.Release(ctx, 999)
	assert.True(t, crmerr.IsKind(err, crmerr.NotFound))

	_, err = c.AddNote(ctx, conv.ID, "called")
	require.NoError(t, err)
	notes, err := c.Notes(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Ana", notes[0].Author)

	convs, err := c.Conversations(ctx)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestLastQRNotFound(t *testing.T) {
	srv, _ := newBackend(t, gateway.Unconfigured{})
	c := loggedIn(t, srv)

	_, err := c.LastQR(context.Background())
	assert.True(t, crmerr.IsKind(err, crmerr.NotFound), "got %v", err)
}
