package wa

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/status"
)

// EventHandler processes whatsmeow events, drives the gateway state machine and publishes
// inbound messages on the bus. It does not touch the store; the ingest engine subscribes to
// the bus independently.
type EventHandler struct {
	bus      *bus.Bus
	machine  *status.Machine
	resolver LIDResolver
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler. resolver may be nil.
func NewEventHandler(b *bus.Bus, machine *status.Machine, resolver LIDResolver, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:      b,
		machine:  machine,
		resolver: resolver,
		logger:   logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		h.machine.TransitionIf(status.Connecting, status.Booting, status.AuthRequired, status.Reconnecting)
		h.machine.TransitionIf(status.Connected, status.Connecting, status.Degraded)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.machine.TransitionIf(status.Reconnecting, status.Connecting, status.Connected, status.Degraded)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.machine.TransitionIf(status.Connecting, status.Reconnecting)
		h.machine.TransitionIf(status.AuthRequired, status.Connecting, status.Connected, status.Degraded)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	in, ok := ParseLiveMessage(context.Background(), evt, h.resolver)
	if !ok {
		return
	}
	h.bus.Publish(bus.NewEvent(bus.KindInboundMessage, in))
}

// handleHistorySync forwards the one-to-one messages of a history batch. Redelivered messages
// are absorbed by the ingest engine, which keys them on the WhatsApp message id.
func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	ctx := context.Background()
	n := 0
	for _, conv := range data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			at := time.Unix(int64(wmsg.GetMessageTimestamp()), 0)
			in, ok := parseMessage(ctx, h.resolver, chat, wmsg.GetKey().GetID(), wmsg.GetPushName(),
				wmsg.GetKey().GetFromMe(), at, wmsg.GetMessage())
			if !ok {
				continue
			}
			h.bus.Publish(bus.NewEvent(bus.KindInboundMessage, in))
			n++
		}
	}
	if n > 0 {
		h.logger.Info("history sync forwarded", zap.Int("messages", n))
	}
}
