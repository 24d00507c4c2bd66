package agent

import "sync"

// EventKind classifies turn notifications emitted by an [Agent] for embedders
// that want to react to conversation flow (UI state, analytics, recording).
type EventKind int

const (
	// EventUserStartedSpeaking is emitted when the backend's voice activity
	// detection hears the user start speaking.
	EventUserStartedSpeaking EventKind = iota

	// EventUserStoppedSpeaking is emitted when the user's speech segment is
	// committed (end of user turn).
	EventUserStoppedSpeaking

	// EventAgentStartedSpeaking is emitted when an agent utterance emits its
	// first audio frame.
	EventAgentStartedSpeaking

	// EventAgentStoppedSpeaking is emitted when an agent utterance ends;
	// Event.Interrupted reports whether it was cut short by barge-in.
	EventAgentStoppedSpeaking
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventUserStartedSpeaking:
		return "user_started_speaking"
	case EventUserStoppedSpeaking:
		return "user_stopped_speaking"
	case EventAgentStartedSpeaking:
		return "agent_started_speaking"
	case EventAgentStoppedSpeaking:
		return "agent_stopped_speaking"
	default:
		return "unknown"
	}
}

// Event is one agent turn notification. Interrupted is meaningful only for
// [EventAgentStoppedSpeaking].
type Event struct {
	Kind        EventKind
	Interrupted bool
}

// Handler processes one agent event. Handlers are invoked synchronously and
// must not block.
type Handler func(Event)

// Registry maps event kinds to an ordered handler list with synchronous
// dispatch. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[EventKind][]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[EventKind][]Handler)}
}

// Subscribe registers h for events of the given kind.
func (r *Registry) Subscribe(kind EventKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[kind] = append(r.subs[kind], h)
}

// Emit invokes every handler registered for ev.Kind, in subscription order,
// on the calling goroutine.
func (r *Registry) Emit(ev Event) {
	r.mu.RLock()
	handlers := r.subs[ev.Kind]
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
