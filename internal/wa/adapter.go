// Package wa is the direct WhatsApp gateway driver built on whatsmeow. It sends text
// messages, pairs the device by QR code and turns incoming messages into inbound rows.
package wa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/gateway"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
	timeout   time.Duration
}

// NewAdapter opens the device store at dbPath and prepares a client. timeout bounds each send.
func NewAdapter(ctx context.Context, dbPath string, timeout time.Duration, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wppcrm", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		bus:       b,
		logger:    logger.Named("wa"),
		timeout:   timeout,
	}, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the WhatsApp connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// SendText implements gateway.Sender. Failures are reported with the HTTP status the Z-API
// driver would have produced for the same condition, so both drivers classify alike.
func (a *Adapter) SendText(ctx context.Context, phone, text string) gateway.Result {
	to, err := PhoneJID(phone)
	if err != nil {
		return gateway.Result{OK: false, Status: http.StatusNotFound, BodyText: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		a.logger.Warn("send failed", zap.String("to", to.String()), zap.Error(err))
		return resultFromError(err)
	}
	body, _ := json.Marshal(map[string]string{"messageId": resp.ID})
	return gateway.Result{OK: true, Status: http.StatusOK, BodyText: string(body)}
}

func resultFromError(err error) gateway.Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return gateway.Result{OK: false, Status: gateway.StatusTimeout, BodyText: err.Error()}
	case errors.Is(err, whatsmeow.ErrNotLoggedIn):
		return gateway.Result{OK: false, Status: http.StatusUnauthorized, BodyText: err.Error()}
	case errors.Is(err, whatsmeow.ErrNotConnected):
		return gateway.Result{OK: false, Status: http.StatusServiceUnavailable, BodyText: err.Error()}
	default:
		return gateway.Result{OK: false, Status: http.StatusBadGateway, BodyText: err.Error()}
	}
}

// PhoneJID converts a phone number, with or without punctuation, into a user JID. Full JIDs
// are accepted as-is.
func PhoneJID(phone string) (types.JID, error) {
	if strings.Contains(phone, "@") {
		jid, err := types.ParseJID(phone)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse JID: %w", err)
		}
		return jid, nil
	}
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 8 {
		return types.JID{}, fmt.Errorf("invalid phone number %q", phone)
	}
	return types.NewJID(digits.String(), types.DefaultUserServer), nil
}

// GetQRChannel returns the QR channel for pairing. Must be called before Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// PhoneNumber returns the paired phone number, or an empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
