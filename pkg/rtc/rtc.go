// Package rtc defines the narrow room contract the voicelink agent depends on.
//
// The two primary abstractions are:
//
//   - [Room] — an active connection to a multi-participant audio room, giving
//     callers remote participant enumeration, a [LocalParticipant] for
//     publishing, and lifecycle events through a typed [Registry].
//   - [RemoteTrack] — a subscribed microphone track delivering
//     [audio.AudioFrame] values at a requested format.
//
// Implementations are provided by transport-specific adapter packages
// (e.g., rtc/livekit). The interfaces are intentionally narrow to keep the
// agent decoupled from transport details: enumerate remote participants,
// subscribe a track, publish a local audio track, set a state attribute, and
// forward transcription segments.
//
// This package lives under pkg/ because external code (alternative room
// adapters) is expected to implement [Room].
package rtc

import (
	"context"

	"github.com/overlapai/voicelink/pkg/audio"
)

// AttributeAgentState is the participant-attribute key under which the agent
// publishes its presence state ("initializing", "listening", "speaking").
// Room clients watch this attribute to render agent UI.
const AttributeAgentState = "lk.agent.state"

// TrackSource classifies the capture source of a published track.
type TrackSource int

const (
	SourceUnknown TrackSource = iota
	SourceMicrophone
	SourceScreenShare
)

// String returns the human-readable name of the track source.
func (s TrackSource) String() string {
	switch s {
	case SourceMicrophone:
		return "MICROPHONE"
	case SourceScreenShare:
		return "SCREEN_SHARE"
	default:
		return "UNKNOWN"
	}
}

// TranscriptSegment is one unit of forwarded transcript text, either interim
// (subject to revision) or final. Segments have no independent identity beyond
// the ID used to correlate interim revisions; they are forwarded and discarded.
type TranscriptSegment struct {
	// ID correlates interim revisions of the same utterance. Implementations
	// replace a previously forwarded segment with the same ID.
	ID string

	// ParticipantIdentity attributes the segment to a room participant.
	ParticipantIdentity string

	// TrackID names the audio track the speech arrived or left on. May be empty.
	TrackID string

	// Text is the transcript content. Empty text with Final == false is a valid
	// interim placeholder.
	Text string

	// Final marks the segment as settled. Interim segments may be revised.
	Final bool

	// Language is a BCP-47 language tag when known, otherwise empty.
	Language string
}

// Room represents an active connection to an audio room.
//
// Implementations must be safe for concurrent use.
type Room interface {
	// Name returns the room's name.
	Name() string

	// IsConnected reports whether the room connection is currently live.
	IsConnected() bool

	// Events returns the room's event registry. Handlers subscribed there are
	// invoked synchronously, in subscription order, for every room event.
	Events() *Registry

	// RemoteParticipants returns a snapshot of the remote participants currently
	// in the room, in a stable enumeration order (join order).
	RemoteParticipants() []RemoteParticipant

	// RemoteParticipant looks up a remote participant by identity. Returns nil
	// if no participant with that identity is present.
	RemoteParticipant(identity string) RemoteParticipant

	// LocalParticipant returns the local (agent) participant.
	LocalParticipant() LocalParticipant
}

// RemoteParticipant is a participant other than the local agent.
//
// Values are weak references into the room's live membership: holding one does
// not keep the participant alive, and methods on a departed participant return
// zero values.
type RemoteParticipant interface {
	// Identity returns the participant's unique identity string.
	Identity() string

	// TrackPublications returns a snapshot of the participant's current track
	// publications.
	TrackPublications() []TrackPublication
}

// TrackPublication describes one track published by a remote participant.
type TrackPublication interface {
	// SID returns the server-assigned track identifier.
	SID() string

	// Source reports what the track captures.
	Source() TrackSource

	// IsSubscribed reports whether the local participant currently receives
	// this track's media.
	IsSubscribed() bool

	// SetSubscribed subscribes or unsubscribes the local participant.
	// Subscription completion is signalled by an [EventTrackSubscribed] event.
	SetSubscribed(subscribed bool) error

	// Track returns the media track, or nil while the publication is not
	// subscribed or media has not arrived yet.
	Track() RemoteTrack
}

// RemoteTrack is a subscribed media track delivering decoded audio.
type RemoteTrack interface {
	// ID returns the track identifier (matches the publication's SID).
	ID() string

	// Stream opens a frame stream converted to the requested format. The
	// returned channel is closed when ctx is cancelled or the track ends.
	// Each call opens an independent reader; callers wanting a single active
	// consumer must cancel the previous ctx before opening a new stream.
	Stream(ctx context.Context, format audio.Format) <-chan audio.AudioFrame
}

// LocalParticipant is the agent's own participant in the room.
type LocalParticipant interface {
	// Identity returns the local participant's identity string.
	Identity() string

	// PublishAudioTrack publishes a new outgoing audio track with the given
	// name, frame format, and source classification. The returned track accepts
	// frames immediately; use [LocalAudioTrack.WaitForSubscription] to wait for
	// a listener before treating the track as live.
	PublishAudioTrack(ctx context.Context, name string, format audio.Format, source TrackSource) (LocalAudioTrack, error)

	// SetAttributes merges attrs into the local participant's shared attribute
	// metadata, propagating to all room participants.
	SetAttributes(ctx context.Context, attrs map[string]string) error

	// PublishTranscription forwards a transcript segment to the room.
	PublishTranscription(ctx context.Context, seg TranscriptSegment) error
}

// LocalAudioTrack is a published outgoing audio track.
type LocalAudioTrack interface {
	// ID returns the published track's identifier.
	ID() string

	// WriteFrame emits one frame to the room. Blocks only for transport pacing;
	// returns early with ctx's error if ctx is cancelled.
	WriteFrame(ctx context.Context, f audio.AudioFrame) error

	// WaitForSubscription blocks until at least one remote participant
	// subscribes to the track, or ctx is cancelled.
	WaitForSubscription(ctx context.Context) error

	// Close unpublishes the track. Safe to call more than once.
	Close() error
}
