package status

import (
	"testing"

	"github.com/matheus3301/wppcrm/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, AuthRequired},
		{Booting, Connecting},
		{Booting, Connected},
		{Booting, Error},
		{AuthRequired, Connecting},
		{Connecting, Connected},
		{Connected, Degraded},
		{Degraded, Connected},
		{Connected, Reconnecting},
		{Reconnecting, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Degraded); err == nil {
		t.Error("Transition(BOOTING -> DEGRADED) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("gateway.", 10)
	defer unsub()

	m := NewMachine(b)
	before := m.Since()
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}
	if m.Since().Before(before) {
		t.Error("Since() should advance on transition")
	}

	evt := <-ch
	if evt.Kind != bus.KindGatewayState {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindGatewayState)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Booting || change.To != AuthRequired {
		t.Errorf("change = %v -> %v, want BOOTING -> AUTH_REQUIRED", change.From, change.To)
	}
}

// Pairing must pass through CONNECTING; a Connected event seen while still
// AUTH_REQUIRED has to take the long way.
func TestAuthRequiredCannotJumpToConnected(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(AuthRequired)

	if err := m.Transition(Connected); err == nil {
		t.Fatal("Transition(AUTH_REQUIRED -> CONNECTED) should fail")
	}
	if m.Current() != AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connected); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionIf(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	if m.TransitionIf(Connected, Degraded) {
		t.Error("TransitionIf should not fire from CONNECTED")
	}
	if !m.TransitionIf(Degraded, Connected) {
		t.Fatal("TransitionIf(DEGRADED, CONNECTED) should fire")
	}
	if !m.TransitionIf(Connected, Degraded) {
		t.Fatal("recovery should fire")
	}
}

func TestDisconnectReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	for _, s := range []State{Reconnecting, Connecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func TestCanSend(t *testing.T) {
	for s, want := range map[State]bool{
		Connected: true, Degraded: true, Booting: false, AuthRequired: false, Reconnecting: false,
	} {
		if got := s.CanSend(); got != want {
			t.Errorf("%s.CanSend() = %v, want %v", s, got, want)
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Connecting:   {AuthRequired, Connecting},
		Connected:    {Connected},
		Degraded:     {Connected, Degraded},
		Reconnecting: {Connected, Reconnecting},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
