package rtc

import "sync"

// EventKind classifies room lifecycle events emitted through a [Registry].
type EventKind int

const (
	// EventParticipantConnected is emitted when a remote participant joins.
	EventParticipantConnected EventKind = iota

	// EventParticipantDisconnected is emitted when a remote participant leaves.
	EventParticipantDisconnected

	// EventTrackPublished is emitted when a remote participant publishes a
	// new track.
	EventTrackPublished

	// EventTrackSubscribed is emitted when media for a subscribed track starts
	// arriving; Publication.Track() is non-nil from this point on.
	EventTrackSubscribed

	// EventTrackUnsubscribed is emitted when a subscribed track's media stops.
	EventTrackUnsubscribed
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventParticipantConnected:
		return "participant_connected"
	case EventParticipantDisconnected:
		return "participant_disconnected"
	case EventTrackPublished:
		return "track_published"
	case EventTrackSubscribed:
		return "track_subscribed"
	case EventTrackUnsubscribed:
		return "track_unsubscribed"
	default:
		return "unknown"
	}
}

// Event describes one room lifecycle change. Participant is set for every
// kind; Publication is set for the track events.
type Event struct {
	Kind        EventKind
	Participant RemoteParticipant
	Publication TrackPublication
}

// Handler processes one room event. Handlers are invoked synchronously from
// the room's event dispatch and must not block.
type Handler func(Event)

// Registry is a typed publish/subscribe registry mapping event kinds to an
// ordered list of handlers. Dispatch is synchronous and in subscription order,
// so a single-goroutine emitter preserves event ordering across handlers.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[EventKind][]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[EventKind][]Handler)}
}

// Subscribe registers h for events of the given kind. Handlers cannot be
// removed individually; subscribe for the lifetime of the room connection.
func (r *Registry) Subscribe(kind EventKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[kind] = append(r.subs[kind], h)
}

// Emit invokes every handler subscribed to ev.Kind, in subscription order,
// on the calling goroutine.
func (r *Registry) Emit(ev Event) {
	r.mu.RLock()
	handlers := r.subs[ev.Kind]
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
