package wa

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/bus"
)

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent represents an auth lifecycle event. It is also the payload of gateway.qr events.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	QRCode  string        `json:"qrCode,omitempty"`
	Message string        `json:"message,omitempty"`
}

// StartQRAuth begins the QR auth flow. Every step is published on the bus as a gateway.qr
// event so the pairing endpoint and the CLI can render codes as they rotate.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan AuthEvent, 10)
	emit := func(evt AuthEvent) {
		out <- evt
		a.bus.Publish(bus.NewEvent(bus.KindGatewayQR, evt))
	}

	go func() {
		defer close(out)

		// Connect must be called after GetQRChannel.
		if err := a.Connect(); err != nil {
			emit(AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			return
		}

		for item := range qrChan {
			evt, done := authEventFor(item)
			if evt.Type == "" {
				continue
			}
			emit(evt)
			if done {
				return
			}
		}
	}()

	return out, nil
}

// authEventFor translates a QR channel item. done reports whether the flow is over.
func authEventFor(item whatsmeow.QRChannelItem) (evt AuthEvent, done bool) {
	switch item.Event {
	case "code":
		return AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}, false
	case "success":
		return AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}, true
	case "timeout":
		return AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}, true
	}
	if item.Error != nil {
		return AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}, true
	}
	return AuthEvent{}, false
}

// StartPairing runs the QR flow in the background. The flow outlives ctx's cancellation, so
// an HTTP request can start it; progress is only reported on the bus.
func (a *Adapter) StartPairing(ctx context.Context) error {
	events, err := a.StartQRAuth(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	go func() {
		for evt := range events {
			a.logger.Info("pairing", zap.String("event", string(evt.Type)))
		}
	}()
	return nil
}
