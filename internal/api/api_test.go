package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/metrics"
	"github.com/matheus3301/wppcrm/internal/status"
	"github.com/matheus3301/wppcrm/internal/store"
)

type env struct {
	e       *echo.Echo
	h       *Handler
	db      *store.DB
	bus     *bus.Bus
	machine *status.Machine
	token   string
	sent    []string
}

func openDB(t *testing.T, migrate bool) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	if migrate {
		_, err = db.Migrate()
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newEnv(t *testing.T, result gateway.Result) *env {
	t.Helper()
	db := openDB(t, true)
	b := bus.New()
	authSvc := auth.NewService(db, time.Hour)
	_, err := authSvc.CreateUser("ana@example.com", "Ana", auth.RoleAgent, "pw")
	require.NoError(t, err)
	sess, err := authSvc.Login("ana@example.com", "pw")
	require.NoError(t, err)

	en := &env{db: db, bus: b, machine: status.NewMachine(b), token: sess.Token}
	require.NoError(t, en.machine.Transition(status.Connected))

	en.h = NewHandler(Deps{
		Instance: "test",
		Driver:   "zapi",
		DB:       db,
		Bus:      b,
		Ingest:   ingest.NewEngine(db, b, nil, nil),
		Gateway: gateway.SenderFunc(func(_ context.Context, phone, text string) gateway.Result {
			en.sent = append(en.sent, phone+":"+text)
			return result
		}),
		Machine: en.machine,
		Auth:    authSvc,
		Metrics: metrics.New(),
		Logger:  zap.NewNop(),
	})
	en.e = NewEcho(en.h)
	return en
}

func (en *env) do(t *testing.T, method, path, body string, authed bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if authed {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+en.token)
	}
	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestPingAndAuthBoundary(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true, Status: 200})

	rec, _ := en.do(t, http.MethodGet, "/api/ping", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = en.do(t, http.MethodGet, "/api/messages", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = en.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"email":"ana@example.com","password":"pw"}`, http.StatusOK},
		{"missing", `{"email":"ana@example.com"}`, http.StatusBadRequest},
		{"wrong", `{"email":"ana@example.com","password":"x"}`, http.StatusUnauthorized},
		{"malformed", `{"email":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := en.do(t, http.MethodPost, "/api/auth/login", tt.body, false)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusOK {
				assert.NotEmpty(t, out["token"])
				user := out["user"].(map[string]any)
				assert.Equal(t, "Ana", user["name"])
				assert.Equal(t, "agent", user["role"])
			}
		})
	}
}

func TestPersistAndFetch(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})
	ch, unsub := en.bus.Subscribe(bus.KindMessageInserted, 4)
	defer unsub()

	body := `{"clientMessageId":"cid-1","contactKey":"5511","text":"ola","authorName":"Ana","fromMe":true}`
	rec, out := en.do(t, http.MethodPost, "/api/messages", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := out["data"].(map[string]any)
	assert.Equal(t, "cid-1", row["client_message_id"])
	assert.Equal(t, "crmtui", row["source"])

	// A retry with the same key stores nothing new.
	rec, _ = en.do(t, http.MethodPost, "/api/messages", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ch, 1)

	rec, out = en.do(t, http.MethodGet, "/api/messages?contact=5511", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)

	rec, out = en.do(t, http.MethodGet, "/api/messages/search?q=ola", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)

	rec, _ = en.do(t, http.MethodGet, "/api/messages/search", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchOperatorSyntax(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})
	body := `{"clientMessageId":"cid-1","contactKey":"5511","text":"qual o preço do plano","fromMe":true}`
	rec, _ := en.do(t, http.MethodPost, "/api/messages", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, q := range []string{"%22pre%C3%A7o", "plano+AND", "x%29"} {
		rec, _ = en.do(t, http.MethodGet, "/api/messages/search?q="+q, "", true)
		assert.Equal(t, http.StatusOK, rec.Code, "q=%s: %s", q, rec.Body.String())
	}

	rec, out := en.do(t, http.MethodGet, "/api/messages/search?q=%22%22", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["ok"])
}

func TestPersistValidation(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})
	rec, out := en.do(t, http.MethodPost, "/api/messages", `{"contactKey":"5511"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["ok"])
}

func TestSendTextProxy(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: false, Status: 404, BodyText: `{"error":"not found"}`})

	rec, out := en.do(t, http.MethodPost, "/api/gateway/send-text", `{"phone":"5511","message":"hi"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, float64(404), out["status"])
	assert.Equal(t, []string{"5511:hi"}, en.sent)
	assert.Equal(t, status.Connected, en.machine.Current(), "invalid number does not degrade the gateway")

	rec, _ = en.do(t, http.MethodPost, "/api/gateway/send-text", `{"phone":"","message":"hi"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, en.sent, 1, "invalid request never reaches the gateway")
}

func TestSendTextDegradesAndRecovers(t *testing.T) {
	var res gateway.Result
	en := newEnv(t, gateway.Result{})
	en.h.Gateway = gateway.SenderFunc(func(context.Context, string, string) gateway.Result { return res })

	res = gateway.Result{OK: false, Status: 503}
	en.do(t, http.MethodPost, "/api/gateway/send-text", `{"phone":"1","message":"a"}`, true)
	assert.Equal(t, status.Degraded, en.machine.Current())

	res = gateway.Result{OK: true, Status: 200}
	en.do(t, http.MethodPost, "/api/gateway/send-text", `{"phone":"1","message":"a"}`, true)
	assert.Equal(t, status.Connected, en.machine.Current())
}

func TestConversationRoutes(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})

	rec, out := en.do(t, http.MethodGet, "/api/conversations/by-contact/5511", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	placeholder := out["data"].(map[string]any)
	assert.Equal(t, float64(0), placeholder["id"])
	assert.Equal(t, "open", placeholder["status"])

	conv, err := en.db.EnsureConversation("5511", "Ana")
	require.NoError(t, err)
	base := "/api/conversations/" + itoa(conv.ID)

	rec, out = en.do(t, http.MethodPost, base+"/toggle-bot", `{"enabled":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["data"].(map[string]any)["bot_enabled"])

	rec, _ = en.do(t, http.MethodPost, base+"/toggle-bot", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = en.do(t, http.MethodPost, base+"/assign", `{}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana", out["data"].(map[string]any)["assigned_to"], "defaults to the caller")

	rec, out = en.do(t, http.MethodPost, base+"/release", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, out["data"].(map[string]any)["assigned_to"])

	rec, _ = en.do(t, http.MethodPost, base+"/status", `{"status":"archived"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, out = en.do(t, http.MethodPost, base+"/status", `{"status":"closed"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", out["data"].(map[string]any)["status"])

	rec, out = en.do(t, http.MethodPost, base+"/tags", `{"tags":["vip"]}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"vip"}, out["data"].(map[string]any)["tags"])

	rec, _ = en.do(t, http.MethodPost, "/api/conversations/999/release", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = en.do(t, http.MethodPost, "/api/conversations/abc/release", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = en.do(t, http.MethodGet, "/api/conversations", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)
}

func TestContactsAndNotes(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})

	rec, out := en.do(t, http.MethodPost, "/api/contacts", `{"phone":"5511","name":"Ana","tags":["a"]}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := int64(out["data"].(map[string]any)["id"].(float64))

	rec, _ = en.do(t, http.MethodPost, "/api/contacts", `{"phone":"5511"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = en.do(t, http.MethodPut, "/api/contacts/"+itoa(id), `{"notes":"prefers mornings"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	ct := out["data"].(map[string]any)
	assert.Equal(t, "Ana", ct["name"], "omitted fields are kept")
	assert.Equal(t, "prefers mornings", ct["notes"])

	rec, _ = en.do(t, http.MethodPut, "/api/contacts/999", `{"notes":"x"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conv, err := en.db.EnsureConversation("5511", "Ana")
	require.NoError(t, err)
	rec, out = en.do(t, http.MethodPost, "/api/notes", `{"conversation_id":`+itoa(conv.ID)+`,"text":"called back"}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Ana", out["data"].(map[string]any)["author"])

	rec, out = en.do(t, http.MethodGet, "/api/notes?conversation_id="+itoa(conv.ID), "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)

	rec, _ = en.do(t, http.MethodGet, "/api/notes", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})

	rec, out := en.do(t, http.MethodPost, "/api/zapi/webhook", `{"phone":"5511","text":"oi","senderName":"Bia"}`, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["stored"])

	msgs, err := en.db.ListMessages("5511", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bia", msgs[0].Name)
	assert.Equal(t, ingest.SourceWebhook, msgs[0].Source)

	rec, out = en.do(t, http.MethodPost, "/api/zapi/webhook", `{"phone":"5511"}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing phone or message", out["reason"])
}

func TestWebhookIsNotThrottled(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})
	// Burst of 10 with almost no refill, so anything behind the limiter fails by request 11.
	pool := auth.NewLimiterPool(0.001, 10)
	t.Cleanup(pool.Shutdown)
	en.h.Limiter = pool
	en.e = NewEcho(en.h)

	for i := range 25 {
		body := `{"phone":"5511","text":"burst","senderName":"Bia"}`
		rec, _ := en.do(t, http.MethodPost, "/api/zapi/webhook", body, false)
		require.Equal(t, http.StatusOK, rec.Code, "webhook %d: %s", i, rec.Body.String())
	}

	var throttled bool
	for range 11 {
		rec, _ := en.do(t, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"x"}`, false)
		if rec.Code == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	assert.True(t, throttled, "login should still be rate limited")
}

func TestWebhookDegradesWithoutTable(t *testing.T) {
	db := openDB(t, false)
	b := bus.New()
	h := NewHandler(Deps{DB: db, Bus: b, Ingest: ingest.NewEngine(db, b, nil, nil)})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/zapi/webhook", strings.NewReader(`{"to":"1","message":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Webhook(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stored":false`)
}

func TestRoutesWithoutStore(t *testing.T) {
	h := NewHandler(Deps{})
	e := NewEcho(h)

	for _, path := range []string{"/api/messages", "/api/conversations"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "not configured", path)
	}
}

func TestStatusAndQR(t *testing.T) {
	en := newEnv(t, gateway.Result{OK: true})
	en.h.Start(context.Background())
	defer en.h.Stop()

	rec, out := en.do(t, http.MethodGet, "/api/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "test", data["instance"])
	assert.Equal(t, "CONNECTED", data["state"])
	assert.Equal(t, "ana@example.com", data["user"])

	rec, _ = en.do(t, http.MethodGet, "/api/gateway/qr", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	en.bus.Publish(bus.NewEvent(bus.KindGatewayQR, map[string]string{"type": "qr_code", "qrCode": "2@abc"}))
	require.Eventually(t, func() bool {
		rec, _ := en.do(t, http.MethodGet, "/api/gateway/qr", "", true)
		return rec.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	rec, _ = en.do(t, http.MethodPost, "/api/gateway/pair", "", true)
	assert.Equal(t, http.StatusForbidden, rec.Code, "pairing is admin only")
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
