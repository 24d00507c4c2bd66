// Package livekit provides the [rtc.Room] implementation backed by LiveKit
// via the livekit/server-sdk-go library. It bridges LiveKit's Opus-over-WebRTC
// transport with the voicelink PCM [audio.AudioFrame] pipeline.
//
// Incoming microphone tracks are decoded with gopus and resampled to the
// requested format; outgoing agent audio is written through the SDK's PCM
// local track, which handles Opus encoding and 48 kHz resampling internally.
package livekit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/overlapai/voicelink/pkg/rtc"
)

// Compile-time interface assertion.
var _ rtc.Room = (*Room)(nil)

// Config carries the connection parameters for a LiveKit room.
type Config struct {
	// URL is the LiveKit server websocket URL (wss://...).
	URL string

	// APIKey and APISecret authenticate the connection.
	APIKey    string
	APISecret string

	// RoomName is the room to join.
	RoomName string

	// Identity is the agent's participant identity. Empty defaults to
	// "voicelink-agent".
	Identity string
}

// Option configures a [Room] before it connects.
type Option func(*Room)

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(log *slog.Logger) Option {
	return func(r *Room) {
		if log != nil {
			r.log = log
		}
	}
}

// Room implements [rtc.Room] over a LiveKit SDK room connection.
//
// Room is safe for concurrent use.
type Room struct {
	log    *slog.Logger
	events *rtc.Registry

	connected atomic.Bool

	mu     sync.Mutex
	lkroom *lksdk.Room
	// join-order identities backing the RemoteParticipants snapshot
	order        []string
	participants map[string]*lksdk.RemoteParticipant
	// subscribed media keyed by publication SID
	tracks map[string]*remoteTrack

	local *localParticipant
}

// Connect joins the configured LiveKit room and returns an active [Room].
// The supplied ctx governs the connection-setup phase only; once the Room is
// returned it lives until [Room.Disconnect] is called.
//
// Tracks are not auto-subscribed: callers select microphone publications and
// subscribe them explicitly via [rtc.TrackPublication.SetSubscribed].
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("livekit: connect: URL is required")
	}

	r := &Room{
		log:          slog.Default(),
		events:       rtc.NewRegistry(),
		participants: make(map[string]*lksdk.RemoteParticipant),
		tracks:       make(map[string]*remoteTrack),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.local = &localParticipant{room: r}

	identity := cfg.Identity
	if identity == "" {
		identity = "voicelink-agent"
	}

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
			OnTrackPublished:    r.onTrackPublished,
		},
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnReconnecting: func() {
			r.connected.Store(false)
			r.log.Warn("livekit: reconnecting", "room", cfg.RoomName)
		},
		OnReconnected: func() {
			r.connected.Store(true)
			r.log.Info("livekit: reconnected", "room", cfg.RoomName)
		},
		OnDisconnected: func() {
			r.connected.Store(false)
			r.log.Info("livekit: disconnected", "room", cfg.RoomName)
		},
	}

	lkroom, err := lksdk.ConnectToRoom(
		cfg.URL,
		lksdk.ConnectInfo{
			APIKey:              cfg.APIKey,
			APISecret:           cfg.APISecret,
			RoomName:            cfg.RoomName,
			ParticipantIdentity: identity,
			ParticipantKind:     lksdk.ParticipantAgent,
		},
		cb,
		lksdk.WithAutoSubscribe(false),
	)
	if err != nil {
		return nil, fmt.Errorf("livekit: connect to room %q: %w", cfg.RoomName, err)
	}

	r.mu.Lock()
	r.lkroom = lkroom
	// Register participants already present when we joined. No events are
	// emitted for these; callers enumerate the snapshot on startup.
	for _, rp := range lkroom.GetRemoteParticipants() {
		if _, ok := r.participants[rp.Identity()]; !ok {
			r.participants[rp.Identity()] = rp
			r.order = append(r.order, rp.Identity())
		}
	}
	r.mu.Unlock()
	r.connected.Store(true)

	r.log.Info("livekit: connected",
		"room", lkroom.Name(),
		"identity", identity,
		"remote_participants", len(r.order),
	)
	return r, nil
}

// Name returns the room's name.
func (r *Room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lkroom == nil {
		return ""
	}
	return r.lkroom.Name()
}

// IsConnected reports whether the room connection is currently live.
func (r *Room) IsConnected() bool {
	return r.connected.Load()
}

// Events returns the room's event registry.
func (r *Room) Events() *rtc.Registry {
	return r.events
}

// RemoteParticipants returns a snapshot of the remote participants currently
// in the room, in join order.
func (r *Room) RemoteParticipants() []rtc.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]rtc.RemoteParticipant, 0, len(r.order))
	for _, identity := range r.order {
		out = append(out, &remoteParticipant{room: r, rp: r.participants[identity]})
	}
	return out
}

// RemoteParticipant looks up a remote participant by identity.
func (r *Room) RemoteParticipant(identity string) rtc.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.participants[identity]
	if !ok {
		return nil
	}
	return &remoteParticipant{room: r, rp: rp}
}

// LocalParticipant returns the local (agent) participant.
func (r *Room) LocalParticipant() rtc.LocalParticipant {
	return r.local
}

// Disconnect leaves the room and releases the SDK connection. Safe to call
// more than once.
func (r *Room) Disconnect() {
	r.connected.Store(false)
	r.mu.Lock()
	lkroom := r.lkroom
	r.mu.Unlock()
	if lkroom != nil {
		lkroom.Disconnect()
	}
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	if _, ok := r.participants[rp.Identity()]; !ok {
		r.participants[rp.Identity()] = rp
		r.order = append(r.order, rp.Identity())
	}
	r.mu.Unlock()

	r.log.Info("livekit: participant connected", "identity", rp.Identity())
	r.events.Emit(rtc.Event{
		Kind:        rtc.EventParticipantConnected,
		Participant: &remoteParticipant{room: r, rp: rp},
	})
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	delete(r.participants, rp.Identity())
	for i, identity := range r.order {
		if identity == rp.Identity() {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.log.Info("livekit: participant disconnected", "identity", rp.Identity())
	r.events.Emit(rtc.Event{
		Kind:        rtc.EventParticipantDisconnected,
		Participant: &remoteParticipant{room: r, rp: rp},
	})
}

func (r *Room) onTrackPublished(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	r.log.Debug("livekit: track published",
		"identity", rp.Identity(),
		"sid", pub.SID(),
		"source", pub.Source().String(),
	)
	r.events.Emit(rtc.Event{
		Kind:        rtc.EventTrackPublished,
		Participant: &remoteParticipant{room: r, rp: rp},
		Publication: &publication{room: r, pub: pub},
	})
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	t := &remoteTrack{sid: pub.SID(), tr: track, log: r.log}
	r.mu.Lock()
	r.tracks[pub.SID()] = t
	r.mu.Unlock()

	r.log.Info("livekit: track subscribed",
		"identity", rp.Identity(),
		"sid", pub.SID(),
		"codec", track.Codec().MimeType,
	)
	r.events.Emit(rtc.Event{
		Kind:        rtc.EventTrackSubscribed,
		Participant: &remoteParticipant{room: r, rp: rp},
		Publication: &publication{room: r, pub: pub},
	})
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	delete(r.tracks, pub.SID())
	r.mu.Unlock()

	r.log.Info("livekit: track unsubscribed",
		"identity", rp.Identity(),
		"sid", pub.SID(),
	)
	r.events.Emit(rtc.Event{
		Kind:        rtc.EventTrackUnsubscribed,
		Participant: &remoteParticipant{room: r, rp: rp},
		Publication: &publication{room: r, pub: pub},
	})
}

// Compile-time interface assertions.
var (
	_ rtc.RemoteParticipant = (*remoteParticipant)(nil)
	_ rtc.TrackPublication  = (*publication)(nil)
)

// remoteParticipant adapts an SDK remote participant to [rtc.RemoteParticipant].
type remoteParticipant struct {
	room *Room
	rp   *lksdk.RemoteParticipant
}

func (p *remoteParticipant) Identity() string {
	return p.rp.Identity()
}

func (p *remoteParticipant) TrackPublications() []rtc.TrackPublication {
	pubs := p.rp.TrackPublications()
	out := make([]rtc.TrackPublication, 0, len(pubs))
	for _, pub := range pubs {
		remotePub, ok := pub.(*lksdk.RemoteTrackPublication)
		if !ok {
			continue
		}
		out = append(out, &publication{room: p.room, pub: remotePub})
	}
	return out
}

// publication adapts an SDK remote track publication to [rtc.TrackPublication].
type publication struct {
	room *Room
	pub  *lksdk.RemoteTrackPublication
}

func (p *publication) SID() string {
	return p.pub.SID()
}

func (p *publication) Source() rtc.TrackSource {
	return fromProtoSource(p.pub.Source())
}

func (p *publication) IsSubscribed() bool {
	return p.pub.IsSubscribed()
}

func (p *publication) SetSubscribed(subscribed bool) error {
	if err := p.pub.SetSubscribed(subscribed); err != nil {
		return fmt.Errorf("livekit: set subscribed %v on track %s: %w", subscribed, p.pub.SID(), err)
	}
	return nil
}

func (p *publication) Track() rtc.RemoteTrack {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()
	t := p.room.tracks[p.pub.SID()]
	if t == nil {
		return nil
	}
	return t
}

// fromProtoSource maps a protocol track source to the narrow [rtc.TrackSource].
func fromProtoSource(s livekit.TrackSource) rtc.TrackSource {
	switch s {
	case livekit.TrackSource_MICROPHONE:
		return rtc.SourceMicrophone
	case livekit.TrackSource_SCREEN_SHARE, livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return rtc.SourceScreenShare
	default:
		return rtc.SourceUnknown
	}
}

// toProtoSource maps an [rtc.TrackSource] to the protocol enum for publishing.
func toProtoSource(s rtc.TrackSource) livekit.TrackSource {
	switch s {
	case rtc.SourceMicrophone:
		return livekit.TrackSource_MICROPHONE
	case rtc.SourceScreenShare:
		return livekit.TrackSource_SCREEN_SHARE_AUDIO
	default:
		return livekit.TrackSource_UNKNOWN
	}
}
