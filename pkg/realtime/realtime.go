// Package realtime defines the contract between the voicelink agent and a
// duplex speech-to-speech backend session.
//
// A [Session] is a long-lived bidirectional connection: the agent appends
// microphone audio to the session's input buffer, and the session emits typed
// server events — most importantly [EventResponseContentAdded], which carries
// the text and audio streams of one model utterance. Barge-in is expressed
// through [Session.TruncateItem], which rewinds the backend's conversation
// record to the audio position the user actually heard.
//
// Implementations are provided by backend-specific adapter packages
// (e.g., realtime/openai). All implementations must be safe for concurrent use.
package realtime

import (
	"context"
	"sync"

	"github.com/overlapai/voicelink/pkg/audio"
)

// EventKind classifies server events emitted by a [Session].
type EventKind int

const (
	// EventResponseContentAdded is emitted when the model starts a new
	// utterance; the event carries the utterance's content streams.
	EventResponseContentAdded EventKind = iota

	// EventInputSpeechStarted is emitted when the backend's voice activity
	// detection hears the user start speaking.
	EventInputSpeechStarted

	// EventInputSpeechCommitted is emitted when the user's speech segment is
	// committed to the conversation (end of user turn).
	EventInputSpeechCommitted

	// EventInputSpeechTranscriptionCompleted is emitted when the backend
	// finishes transcribing a committed user speech segment.
	EventInputSpeechTranscriptionCompleted
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventResponseContentAdded:
		return "response_content_added"
	case EventInputSpeechStarted:
		return "input_speech_started"
	case EventInputSpeechCommitted:
		return "input_speech_committed"
	case EventInputSpeechTranscriptionCompleted:
		return "input_speech_transcription_completed"
	default:
		return "unknown"
	}
}

// ResponseContent identifies one model-authored utterance and carries its
// incrementally produced content.
//
// Both streams are lazy, finite, and non-restartable: they are closed by the
// session when the utterance completes or is truncated. Consumers must drain
// or abandon them; an abandoned stream is garbage-collected with the session.
type ResponseContent struct {
	// ItemID identifies the conversation item this content belongs to.
	// Used to address truncation requests.
	ItemID string

	// ContentIndex is the index of this content part within the item.
	ContentIndex int

	// TextStream yields the utterance transcript incrementally, in order.
	TextStream <-chan string

	// AudioStream yields synthesized PCM16 audio chunks, in order.
	AudioStream <-chan []byte
}

// Event is one typed server event. Content is non-nil only for
// [EventResponseContentAdded]; Transcript is set only for
// [EventInputSpeechTranscriptionCompleted].
type Event struct {
	Kind       EventKind
	Content    *ResponseContent
	Transcript string
	Language   string
}

// Handler processes one session event. Handlers are invoked synchronously from
// the session's receive loop, in subscription order, so per-session event
// ordering is preserved. Handlers must not block.
type Handler func(Event)

// Session is an open speech-to-speech backend session.
//
// Implementations must be safe for concurrent use. Callers must call Close
// when the session is no longer needed.
type Session interface {
	// Subscribe registers h for events of the given kind. Subscriptions last
	// for the session's lifetime.
	Subscribe(kind EventKind, h Handler)

	// AppendInputAudio appends one microphone frame to the session's input
	// audio buffer. Frames must match the session's negotiated input format and
	// must be appended in capture order.
	AppendInputAudio(frame audio.AudioFrame) error

	// TruncateItem tells the backend that playback of the identified utterance
	// stopped after audioEndMS milliseconds of audio, so the conversation
	// record can be revised to the actually-heard prefix.
	TruncateItem(ctx context.Context, itemID string, contentIndex int, audioEndMS int64) error

	// Close terminates the session and closes all open content streams.
	// Safe to call more than once.
	Close() error
}

// EventRegistry is a ready-made [Handler] registry for Session
// implementations: a fixed event-kind type mapped to an ordered handler list
// with synchronous dispatch.
//
// EventRegistry is safe for concurrent use.
type EventRegistry struct {
	mu   sync.RWMutex
	subs map[EventKind][]Handler
}

// NewEventRegistry creates an empty EventRegistry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{subs: make(map[EventKind][]Handler)}
}

// Subscribe registers h for events of kind.
func (r *EventRegistry) Subscribe(kind EventKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[kind] = append(r.subs[kind], h)
}

// Emit invokes every handler registered for ev.Kind, in subscription order,
// on the calling goroutine.
func (r *EventRegistry) Emit(ev Event) {
	r.mu.RLock()
	handlers := r.subs[ev.Kind]
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
