package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
)

// State represents the realtime channel connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Closed},
	Connecting:   {Connected, Reconnecting, Closed},
	Connected:    {Reconnecting, Closed},
	Reconnecting: {Connecting, Closed},
	Closed:       {},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsConnected reports whether the channel can currently emit.
func (m *Machine) IsConnected() bool {
	return m.Current() == Connected
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind:      bus.KindTransport,
		Timestamp: time.Now(),
		Payload: StatusChange{
			From: from,
			To:   to,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
