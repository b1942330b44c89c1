package speech

// StateType represents the current phase of a speech session.
type StateType int

const (
	// StateIdle indicates nothing is being spoken.
	StateIdle StateType = iota
	// StateResolving indicates a voice is being chosen for the utterance.
	StateResolving
	// StateSynthesizing indicates a provider is producing audio.
	StateSynthesizing
	// StatePlaying indicates audio is being played.
	StatePlaying
	// StatePaused indicates playback is suspended.
	StatePaused
	// StateEnded indicates playback ran to completion.
	StateEnded
	// StateError indicates the session failed.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether audio is in flight for this state.
func (s StateType) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// Busy reports whether a session occupies the engine, including the
// pre-playback phases.
func (s StateType) Busy() bool {
	return s != StateIdle && s != StateEnded && s != StateError
}

// StateMachine guards speech session phase transitions.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
}

// NewStateMachine creates a state machine starting at idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:         {StateResolving},
			StateResolving:    {StateSynthesizing, StatePlaying, StateIdle, StateError},
			StateSynthesizing: {StatePlaying, StateIdle, StateError},
			StatePlaying:      {StatePaused, StateEnded, StateIdle, StateError},
			StatePaused:       {StatePlaying, StateIdle},
			StateEnded:        {StateIdle, StateResolving},
			StateError:        {StateIdle, StateResolving},
		},
	}
}

// Transition moves to the given state if the move is legal and reports
// whether it happened.
func (sm *StateMachine) Transition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			sm.current = to
			return true
		}
	}
	return false
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}
