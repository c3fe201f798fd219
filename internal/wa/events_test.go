package wa

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/status"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func TestHandleConnected(t *testing.T) {
	tests := []struct {
		name string
		path []status.State
	}{
		{"from booting", nil},
		{"from auth required", []status.State{status.AuthRequired}},
		{"from connecting", []status.State{status.Connecting}},
		{"from reconnecting", []status.State{status.Connecting, status.Connected, status.Reconnecting}},
		{"from degraded", []status.State{status.Connecting, status.Connected, status.Degraded}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			m := status.NewMachine(b)
			h := NewEventHandler(b, m, nil, zap.NewNop())
			walkTo(t, m, tt.path...)

			h.Handle(&events.Connected{})

			if m.Current() != status.Connected {
				t.Errorf("state = %s, want CONNECTED", m.Current())
			}
		})
	}
}

func TestHandleDisconnected(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	walkTo(t, m, status.Connecting, status.Connected)

	ch, unsub := b.Subscribe(bus.KindGatewayState, 10)
	defer unsub()

	h.Handle(&events.Disconnected{})

	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}

	select {
	case evt := <-ch:
		change := evt.Payload.(status.Change)
		if change.From != status.Connected || change.To != status.Reconnecting {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for gateway.state_changed event")
	}
}

func TestHandleLoggedOut(t *testing.T) {
	tests := []struct {
		name string
		path []status.State
	}{
		{"while connected", []status.State{status.Connecting, status.Connected}},
		{"while reconnecting", []status.State{status.Connecting, status.Connected, status.Reconnecting}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			m := status.NewMachine(b)
			h := NewEventHandler(b, m, nil, zap.NewNop())
			walkTo(t, m, tt.path...)

			h.Handle(&events.LoggedOut{})

			if m.Current() != status.AuthRequired {
				t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
			}
		})
	}
}

func TestHandleMessagePublishesInbound(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, nil, zap.NewNop())

	ch, unsub := b.Subscribe("inbound.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "test1",
			PushName:  "Alice",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "5511999", Server: types.DefaultUserServer},
				Sender: types.JID{User: "5511999", Server: types.DefaultUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	select {
	case evt := <-ch:
		in, ok := evt.Payload.(ingest.Inbound)
		if !ok {
			t.Fatalf("payload = %T, want ingest.Inbound", evt.Payload)
		}
		if in.Phone != "5511999" || in.Text != "hello" || in.Name != "Alice" || in.ExternalID != "test1" {
			t.Errorf("inbound = %+v", in)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound.message event")
	}
}

func TestHandleMessageSkipsGroups(t *testing.T) {
	b := bus.New()
	h := NewEventHandler(b, status.NewMachine(b), nil, zap.NewNop())

	ch, unsub := b.Subscribe("inbound.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID: "g1",
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "120363", Server: types.GroupServer},
				Sender: types.JID{User: "5511", Server: types.DefaultUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("group chatter")},
	})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func historyMsg(id string, fromMe bool, text string) *waHistorySync.HistorySyncMsg {
	ts := uint64(time.Now().Unix())
	return &waHistorySync.HistorySyncMsg{
		Message: &waWeb.WebMessageInfo{
			Key: &waCommon.MessageKey{
				ID:     proto.String(id),
				FromMe: proto.Bool(fromMe),
			},
			MessageTimestamp: &ts,
			Message:          &waE2E.Message{Conversation: proto.String(text)},
		},
	}
}

func TestHandleHistorySync(t *testing.T) {
	b := bus.New()
	h := NewEventHandler(b, status.NewMachine(b), nil, zap.NewNop())

	ch, unsub := b.Subscribe("inbound.", 10)
	defer unsub()

	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:       proto.String("chat@g.us"),
					Messages: []*waHistorySync.HistorySyncMsg{historyMsg("g1", false, "group")},
				},
				{
					ID: proto.String("5511999@s.whatsapp.net"),
					Messages: []*waHistorySync.HistorySyncMsg{
						historyMsg("h1", false, "first"),
						historyMsg("h2", true, "reply"),
					},
				},
			},
		},
	})

	var got []ingest.Inbound
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case evt := <-ch:
			got = append(got, evt.Payload.(ingest.Inbound))
		case <-timeout:
			t.Fatalf("got %d inbound events, want 2", len(got))
		}
	}
	if got[0].ExternalID != "h1" || got[1].ExternalID != "h2" || !got[1].FromMe {
		t.Errorf("inbound = %+v", got)
	}
	if len(ch) != 0 {
		t.Error("group history should be skipped")
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	b := bus.New()
	h := NewEventHandler(b, status.NewMachine(b), nil, zap.NewNop())

	ch, unsub := b.Subscribe("inbound.", 10)
	defer unsub()

	// Should not panic on nil data.
	h.Handle(&events.HistorySync{Data: nil})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeResolver map[types.JID]types.JID

func (f fakeResolver) ResolveLID(_ context.Context, jid types.JID) types.JID {
	if pn, ok := f[jid]; ok {
		return pn
	}
	return jid
}

// Regression: WhatsApp uses LID JIDs alongside phone JIDs for the same user. Without
// resolution they would land in separate conversations.
func TestHandleMessageResolvesLID(t *testing.T) {
	lid := types.JID{User: "3917077286968", Server: types.HiddenUserServer}
	pn := types.JID{User: "558592403672", Server: types.DefaultUserServer}

	b := bus.New()
	h := NewEventHandler(b, status.NewMachine(b), fakeResolver{lid: pn}, zap.NewNop())

	ch, unsub := b.Subscribe("inbound.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:            "l1",
			Timestamp:     time.Now(),
			MessageSource: types.MessageSource{Chat: lid, Sender: lid},
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	})

	select {
	case evt := <-ch:
		if in := evt.Payload.(ingest.Inbound); in.Phone != "558592403672" {
			t.Errorf("phone = %q, want resolved phone number", in.Phone)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound.message event")
	}
}

func TestResolveLIDNonLIDPassthrough(t *testing.T) {
	a := &Adapter{}
	regular := types.JID{User: "558592403672", Server: "s.whatsapp.net"}
	if got := a.ResolveLID(context.Background(), regular); got != regular {
		t.Errorf("ResolveLID(regular) = %v, want %v", got, regular)
	}

	// Without a LID store the original JID comes back.
	lid := types.JID{User: "3917077286968", Server: types.HiddenUserServer}
	if got := a.ResolveLID(context.Background(), lid); got != lid {
		t.Errorf("ResolveLID(lid, nil store) = %v, want %v", got, lid)
	}
}
