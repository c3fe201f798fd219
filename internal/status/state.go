// Package status tracks the outbound gateway's connection state inside the daemon.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wppcrm/internal/bus"
)

// State represents the gateway connection state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. The HTTP gateway goes straight from
// Booting to Connected; the direct WhatsApp connection walks through pairing.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Connected, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Connected, AuthRequired, Reconnecting, Error},
	Connected:    {Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting: {Connecting, Degraded, Error},
	Degraded:     {Connected, Connecting, Reconnecting, AuthRequired, Error},
	Error:        {Booting},
}

// Machine tracks and enforces gateway state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.KindGatewayState, Change{From: from, To: to}))
	}
	return nil
}

// TransitionIf moves to `to` only when the machine is currently in one of `from`.
// It reports whether a transition happened.
func (m *Machine) TransitionIf(to State, from ...State) bool {
	if !slices.Contains(from, m.Current()) {
		return false
	}
	return m.Transition(to) == nil
}

// CanSend reports whether outbound sends are expected to reach the gateway.
func (s State) CanSend() bool {
	return s == Connected || s == Degraded
}

// Change is the payload for gateway state events.
type Change struct {
	From State
	To   State
}
