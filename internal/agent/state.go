package agent

// State is the agent's presence state as seen by the room.
//
// The only legal transitions are initializing→listening, listening→speaking,
// and speaking→listening. There is no direct initializing→speaking edge: the
// agent must have a live output track before its first utterance.
type State int

const (
	// StateInitializing means the agent has not finished publishing its
	// output track yet.
	StateInitializing State = iota

	// StateListening means the agent is quiescent or receiving user speech.
	StateListening

	// StateSpeaking means agent audio is being played out to the room.
	StateSpeaking
)

// String returns the attribute value published to the room for this state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// legalTransition reports whether from→to is an allowed state edge.
func legalTransition(from, to State) bool {
	switch from {
	case StateInitializing:
		return to == StateListening
	case StateListening:
		return to == StateSpeaking
	case StateSpeaking:
		return to == StateListening
	default:
		return false
	}
}
