package conversation

import (
	"fmt"
	"slices"
)

// Phase is the lifecycle of the active conversation.
type Phase string

const (
	Idle    Phase = "IDLE"
	Loading Phase = "LOADING"
	Ready   Phase = "READY"
)

// validTransitions defines allowed phase transitions. Selecting a contact
// re-enters Loading from any phase.
var validTransitions = map[Phase][]Phase{
	Idle:    {Loading},
	Loading: {Loading, Ready},
	Ready:   {Loading},
}

func (s *State) transition(to Phase) error {
	if !slices.Contains(validTransitions[s.phase], to) {
		return fmt.Errorf("invalid transition from %s to %s", s.phase, to)
	}
	s.phase = to
	return nil
}
