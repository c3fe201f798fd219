// Package client talks to the crmd HTTP API on behalf of the dashboard and crmctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/store"
)

// DefaultTimeout bounds every request that does not carry its own deadline.
const DefaultTimeout = 10 * time.Second

// Client is bound to one operator session.
type Client struct {
	session *config.Session
	http    *http.Client
	timeout time.Duration
}

// New returns a client for the session's base URL and token.
func New(s *config.Session, timeout time.Duration) *Client {
	if s == nil {
		s = &config.Session{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{session: s, http: &http.Client{}, timeout: timeout}
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *config.Session {
	return c.session
}

// envelope is the {ok, data, error} wrapper most routes answer with.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func kindForStatus(code int, fallback crmerr.Kind) crmerr.Kind {
	switch code {
	case http.StatusBadRequest:
		return crmerr.Validation
	case http.StatusUnauthorized:
		return crmerr.Unauthorized
	case http.StatusForbidden:
		return crmerr.Forbidden
	case http.StatusNotFound:
		return crmerr.NotFound
	case http.StatusBadGateway:
		return crmerr.Gateway
	case http.StatusGatewayTimeout:
		return crmerr.GatewayTimeout
	}
	return fallback
}

// do sends one request and returns the raw response body for 2xx answers. Other answers are
// turned into a *crmerr.Error carrying the server's message; kind is used when the status
// code does not imply one.
func (c *Client) do(ctx context.Context, kind crmerr.Kind, op, method, path string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, crmerr.E(crmerr.Validation, op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.session.BaseURL, "/")+path, rdr)
	if err != nil {
		return 0, nil, crmerr.E(kind, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && kind == crmerr.Gateway {
			kind = crmerr.GatewayTimeout
		}
		return 0, nil, crmerr.E(kind, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, crmerr.E(kind, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.Error != "" {
			msg = env.Error
		}
		return resp.StatusCode, data, crmerr.Errorf(kindForStatus(resp.StatusCode, kind), op, "%s (HTTP %d)", msg, resp.StatusCode)
	}
	return resp.StatusCode, data, nil
}

// call runs a request whose answer is an envelope and decodes its data into out.
func (c *Client) call(ctx context.Context, kind crmerr.Kind, op, method, path string, body, out any) error {
	_, data, err := c.do(ctx, kind, op, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return crmerr.E(kind, op, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return crmerr.E(kind, op, err)
	}
	return nil
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	_, data, err := c.do(ctx, crmerr.Unauthorized, "login", http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var resp api.LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, crmerr.E(crmerr.Unauthorized, "login", err)
	}
	c.session.Token = resp.Token
	c.session.User = resp.User.Name
	c.session.Role = resp.User.Role
	return &resp, nil
}

// Logout revokes the session's token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, crmerr.Unauthorized, "logout", http.MethodPost, "/api/auth/logout", nil, nil)
}

// Ping checks the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.do(ctx, crmerr.Fetch, "ping", http.MethodGet, "/api/ping", nil)
	return err
}

// Status reports the daemon's gateway state and counters.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.call(ctx, crmerr.Fetch, "status", http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchMessages is the bulk fetch. Rows keep their wire shape for the normalizer.
func (c *Client) FetchMessages(ctx context.Context, contact string, limit int) ([]normalize.Row, error) {
	q := url.Values{}
	if contact != "" {
		q.Set("contact", contact)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var rows []normalize.Row
	if err := c.call(ctx, crmerr.Fetch, "fetch messages", http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Persist stores an operator-authored message on the backend.
func (c *Client) Persist(ctx context.Context, o ingest.Outbound) (normalize.Row, error) {
	var row normalize.Row
	if err := c.call(ctx, crmerr.Persistence, "persist message", http.MethodPost, "/api/messages", o, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// SendText asks the backend to relay a message through its gateway. It satisfies
// gateway.Sender: every failure is reported in the Result, never as an error.
func (c *Client) SendText(ctx context.Context, phone, text string) gateway.Result {
	code, data, err := c.do(ctx, crmerr.Gateway, "send text", http.MethodPost, "/api/gateway/send-text",
		map[string]string{"phone": phone, "message": text})
	if err != nil {
		if code == 0 {
			if crmerr.IsKind(err, crmerr.GatewayTimeout) {
				return gateway.Result{OK: false, Status: http.StatusGatewayTimeout, BodyText: err.Error()}
			}
			return gateway.NetworkError(err)
		}
		return gateway.Result{OK: false, Status: code, BodyText: string(data)}
	}
	var res gateway.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return gateway.Result{OK: false, Status: code, BodyText: string(data)}
	}
	return res
}

// Search runs a full-text query over message bodies.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var results []store.SearchResult
	err := c.call(ctx, crmerr.Fetch, "search", http.MethodGet, "/api/messages/search?"+q.Encode(), nil, &results)
	return results, err
}

// Conversations lists conversation records.
func (c *Client) Conversations(ctx context.Context) ([]store.Conversation, error) {
	var convs []store.Conversation
	err := c.call(ctx, crmerr.Fetch, "list conversations", http.MethodGet, "/api/conversations", nil, &convs)
	return convs, err
}

// ConversationByContact returns the record for a contact key, or an unsaved placeholder.
func (c *Client) ConversationByContact(ctx context.Context, key string) (*store.Conversation, error) {
	var conv store.Conversation
	err := c.call(ctx, crmerr.Fetch, "get conversation", http.MethodGet, "/api/conversations/by-contact/"+url.PathEscape(key), nil, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) mutate(ctx context.Context, op string, id int64, action string, body any) (*store.Conversation, error) {
	var conv store.Conversation
	path := "/api/conversations/" + strconv.FormatInt(id, 10) + "/" + action
	if err := c.call(ctx, crmerr.Persistence, op, http.MethodPost, path, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ToggleBot enables or disables the automated responder.
func (c *Client) ToggleBot(ctx context.Context, id int64, enabled bool) (*store.Conversation, error) {
	return c.mutate(ctx, "toggle bot", id, "toggle-bot", map[string]bool{"enabled": enabled})
}

// Assign hands the conversation to user, or to the caller when user is empty.
func (c *Client) Assign(ctx context.Context, id int64, user string) (*store.Conversation, error) {
	return c.mutate(ctx, "assign", id, "assign", map[string]string{"user": user})
}

// Release clears the assignee.
func (c *Client) Release(ctx context.Context, id int64) (*store.Conversation, error) {
	return c.mutate(ctx, "release", id, "release", nil)
}

// SetStatus moves the conversation to open, pending or closed.
func (c *Client) SetStatus(ctx context.Context, id int64, status string) (*store.Conversation, error) {
	return c.mutate(ctx, "set status", id, "status", map[string]string{"status": status})
}

// SetTags replaces the conversation's tags.
func (c *Client) SetTags(ctx context.Context, id int64, tags []string) (*store.Conversation, error) {
	if tags == nil {
		tags = []string{}
	}
	return c.mutate(ctx, "update tags", id, "tags", map[string][]string{"tags": tags})
}

// AddNote attaches an internal note to a conversation.
func (c *Client) AddNote(ctx context.Context, conversationID int64, text string) (*store.Note, error) {
	var note store.Note
	body := map[string]any{"conversation_id": conversationID, "text": text}
	if err := c.call(ctx, crmerr.Persistence, "add note", http.MethodPost, "/api/notes", body, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Notes lists a conversation's notes, newest first.
func (c *Client) Notes(ctx context.Context, conversationID int64) ([]store.Note, error) {
	var notes []store.Note
	path := "/api/notes?conversation_id=" + strconv.FormatInt(conversationID, 10)
	err := c.call(ctx, crmerr.Fetch, "list notes", http.MethodGet, path, nil, &notes)
	return notes, err
}

// QRCode is the latest pairing event published by the daemon.
type QRCode struct {
	Type    string `json:"type"`
	QRCode  string `json:"qrCode"`
	Message string `json:"message"`
}

// Pair starts QR pairing on the daemon.
func (c *Client) Pair(ctx context.Context) error {
	_, _, err := c.do(ctx, crmerr.Validation, "pair", http.MethodPost, "/api/gateway/pair", nil)
	return err
}

// LastQR returns the most recent pairing event. It fails with NotFound before pairing starts.
func (c *Client) LastQR(ctx context.Context) (*QRCode, error) {
	var qr QRCode
	if err := c.call(ctx, crmerr.Fetch, "qr", http.MethodGet, "/api/gateway/qr", nil, &qr); err != nil {
		return nil, err
	}
	return &qr, nil
}
