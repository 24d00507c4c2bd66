// Package mock provides test doubles for the rtc package interfaces.
//
// Use Room to stage remote participants and publications, drive lifecycle
// events through the registry, and inspect what the agent published back:
// attribute updates, transcription segments, and outgoing audio frames.
//
// Example:
//
//	room := mock.NewRoom("test-room")
//	p := room.AddRemoteParticipant("p1")
//	pub := p.AddMicrophonePublication(24000, 1)
//	pub.PushFrame(frame)
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
)

// Compile-time interface checks.
var (
	_ rtc.Room              = (*Room)(nil)
	_ rtc.RemoteParticipant = (*RemoteParticipant)(nil)
	_ rtc.TrackPublication  = (*TrackPublication)(nil)
	_ rtc.RemoteTrack       = (*RemoteTrack)(nil)
	_ rtc.LocalParticipant  = (*LocalParticipant)(nil)
	_ rtc.LocalAudioTrack   = (*LocalAudioTrack)(nil)
)

// Room is a mock implementation of rtc.Room.
type Room struct {
	mu           sync.Mutex
	name         string
	disconnected bool
	participants []*RemoteParticipant
	registry     *rtc.Registry
	local        *LocalParticipant
}

// NewRoom creates an empty mock room with a local participant named "agent".
func NewRoom(name string) *Room {
	return &Room{
		name:     name,
		registry: rtc.NewRegistry(),
		local:    &LocalParticipant{identity: "agent"},
	}
}

// Name implements rtc.Room.
func (r *Room) Name() string { return r.name }

// IsConnected implements rtc.Room. Use SetDisconnected to simulate a dropped
// connection.
func (r *Room) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disconnected
}

// SetDisconnected toggles the connection state reported by IsConnected.
func (r *Room) SetDisconnected(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = v
}

// Events implements rtc.Room.
func (r *Room) Events() *rtc.Registry { return r.registry }

// RemoteParticipants implements rtc.Room. Participants are returned in the
// order they were added.
func (r *Room) RemoteParticipants() []rtc.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]rtc.RemoteParticipant, len(r.participants))
	for i, p := range r.participants {
		out[i] = p
	}
	return out
}

// RemoteParticipant implements rtc.Room.
func (r *Room) RemoteParticipant(identity string) rtc.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.identity == identity {
			return p
		}
	}
	return nil
}

// LocalParticipant implements rtc.Room.
func (r *Room) LocalParticipant() rtc.LocalParticipant { return r.local }

// Local returns the concrete mock local participant for assertions.
func (r *Room) Local() *LocalParticipant { return r.local }

// AddRemoteParticipant stages a remote participant and returns it. No event is
// emitted; call EmitParticipantConnected to simulate a join.
func (r *Room) AddRemoteParticipant(identity string) *RemoteParticipant {
	p := &RemoteParticipant{identity: identity}
	r.mu.Lock()
	r.participants = append(r.participants, p)
	r.mu.Unlock()
	return p
}

// EmitParticipantConnected adds the participant (if not already present) and
// emits an EventParticipantConnected through the registry.
func (r *Room) EmitParticipantConnected(p *RemoteParticipant) {
	r.mu.Lock()
	found := false
	for _, existing := range r.participants {
		if existing == p {
			found = true
			break
		}
	}
	if !found {
		r.participants = append(r.participants, p)
	}
	r.mu.Unlock()

	r.registry.Emit(rtc.Event{Kind: rtc.EventParticipantConnected, Participant: p})
}

// RemoteParticipant is a mock implementation of rtc.RemoteParticipant.
type RemoteParticipant struct {
	mu           sync.Mutex
	identity     string
	publications []*TrackPublication
}

// Identity implements rtc.RemoteParticipant.
func (p *RemoteParticipant) Identity() string { return p.identity }

// TrackPublications implements rtc.RemoteParticipant.
func (p *RemoteParticipant) TrackPublications() []rtc.TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]rtc.TrackPublication, len(p.publications))
	for i, pub := range p.publications {
		out[i] = pub
	}
	return out
}

// AddMicrophonePublication stages an unsubscribed microphone publication whose
// track delivers frames pushed via TrackPublication.PushFrame.
func (p *RemoteParticipant) AddMicrophonePublication(sampleRate, channels int) *TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub := &TrackPublication{
		sid:    fmt.Sprintf("TR_%s_%d", p.identity, len(p.publications)),
		source: rtc.SourceMicrophone,
	}
	pub.track = &RemoteTrack{
		id:     pub.sid,
		frames: make(chan audio.AudioFrame, 64),
	}
	p.publications = append(p.publications, pub)
	return pub
}

// TrackPublication is a mock implementation of rtc.TrackPublication.
type TrackPublication struct {
	mu         sync.Mutex
	sid        string
	source     rtc.TrackSource
	subscribed bool
	track      *RemoteTrack

	// SetSubscribedCalls records every SetSubscribed invocation in order.
	SetSubscribedCalls []bool

	// SetSubscribedErr, if non-nil, is returned from SetSubscribed.
	SetSubscribedErr error
}

// SID implements rtc.TrackPublication.
func (t *TrackPublication) SID() string { return t.sid }

// Source implements rtc.TrackPublication.
func (t *TrackPublication) Source() rtc.TrackSource { return t.source }

// IsSubscribed implements rtc.TrackPublication.
func (t *TrackPublication) IsSubscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribed
}

// SetSubscribed implements rtc.TrackPublication.
func (t *TrackPublication) SetSubscribed(subscribed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SetSubscribedCalls = append(t.SetSubscribedCalls, subscribed)
	if t.SetSubscribedErr != nil {
		return t.SetSubscribedErr
	}
	t.subscribed = subscribed
	return nil
}

// Track implements rtc.TrackPublication. The mock returns its track as soon as
// the publication is subscribed.
func (t *TrackPublication) Track() rtc.RemoteTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.subscribed {
		return nil
	}
	return t.track
}

// PushFrame delivers a frame to every open stream of this publication's track.
func (t *TrackPublication) PushFrame(f audio.AudioFrame) {
	t.track.push(f)
}

// CloseTrack ends the track's frame delivery; open streams drain and close.
func (t *TrackPublication) CloseTrack() {
	t.track.close()
}

// RemoteTrack is a mock implementation of rtc.RemoteTrack. Frames pushed via
// the publication are fanned out to every open Stream.
type RemoteTrack struct {
	id string

	mu      sync.Mutex
	frames  chan audio.AudioFrame
	streams []chan audio.AudioFrame
	closed  bool
}

// ID implements rtc.RemoteTrack.
func (t *RemoteTrack) ID() string { return t.id }

// Stream implements rtc.RemoteTrack. The mock ignores the requested format and
// delivers pushed frames verbatim.
func (t *RemoteTrack) Stream(ctx context.Context, _ audio.Format) <-chan audio.AudioFrame {
	out := make(chan audio.AudioFrame, 64)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(out)
		return out
	}
	t.streams = append(t.streams, out)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.streams {
			if s == out {
				t.streams = append(t.streams[:i], t.streams[i+1:]...)
				close(out)
				return
			}
		}
	}()

	return out
}

func (t *RemoteTrack) push(f audio.AudioFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.streams {
		select {
		case s <- f:
		default: // slow stream, drop for the mock
		}
	}
}

func (t *RemoteTrack) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, s := range t.streams {
		close(s)
	}
	t.streams = nil
}

// AttributeCall records one SetAttributes invocation.
type AttributeCall struct {
	Attrs map[string]string
}

// LocalParticipant is a mock implementation of rtc.LocalParticipant.
type LocalParticipant struct {
	mu       sync.Mutex
	identity string

	// AttributeCalls records every SetAttributes call in order.
	AttributeCalls []AttributeCall

	// Segments records every PublishTranscription call in order.
	Segments []rtc.TranscriptSegment

	// PublishedTracks records every track created by PublishAudioTrack.
	PublishedTracks []*LocalAudioTrack

	// PublishErr, if non-nil, is returned from PublishAudioTrack.
	PublishErr error
}

// Identity implements rtc.LocalParticipant.
func (l *LocalParticipant) Identity() string { return l.identity }

// PublishAudioTrack implements rtc.LocalParticipant. The returned mock track
// records all written frames and reports immediate subscription.
func (l *LocalParticipant) PublishAudioTrack(_ context.Context, name string, format audio.Format, source rtc.TrackSource) (rtc.LocalAudioTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.PublishErr != nil {
		return nil, l.PublishErr
	}
	tr := &LocalAudioTrack{
		id:     fmt.Sprintf("TR_local_%d", len(l.PublishedTracks)),
		Name:   name,
		Format: format,
		Source: source,
	}
	l.PublishedTracks = append(l.PublishedTracks, tr)
	return tr, nil
}

// SetAttributes implements rtc.LocalParticipant.
func (l *LocalParticipant) SetAttributes(_ context.Context, attrs map[string]string) error {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.AttributeCalls = append(l.AttributeCalls, AttributeCall{Attrs: copied})
	return nil
}

// PublishTranscription implements rtc.LocalParticipant.
func (l *LocalParticipant) PublishTranscription(_ context.Context, seg rtc.TranscriptSegment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Segments = append(l.Segments, seg)
	return nil
}

// States returns the sequence of values the agent assigned to the
// rtc.AttributeAgentState attribute, in order.
func (l *LocalParticipant) States() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.AttributeCalls {
		if s, ok := c.Attrs[rtc.AttributeAgentState]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SegmentsSnapshot returns a copy of all recorded transcription segments.
func (l *LocalParticipant) SegmentsSnapshot() []rtc.TranscriptSegment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]rtc.TranscriptSegment(nil), l.Segments...)
}

// LocalAudioTrack is a mock implementation of rtc.LocalAudioTrack.
type LocalAudioTrack struct {
	id     string
	Name   string
	Format audio.Format
	Source rtc.TrackSource

	mu     sync.Mutex
	frames []audio.AudioFrame
	closed bool
}

// ID implements rtc.LocalAudioTrack.
func (t *LocalAudioTrack) ID() string { return t.id }

// WriteFrame implements rtc.LocalAudioTrack. Frames are recorded for
// inspection via Frames.
func (t *LocalAudioTrack) WriteFrame(ctx context.Context, f audio.AudioFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, f)
	return nil
}

// WaitForSubscription implements rtc.LocalAudioTrack; the mock track is
// considered subscribed immediately.
func (t *LocalAudioTrack) WaitForSubscription(context.Context) error { return nil }

// Close implements rtc.LocalAudioTrack.
func (t *LocalAudioTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Frames returns a copy of all frames written so far.
func (t *LocalAudioTrack) Frames() []audio.AudioFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]audio.AudioFrame(nil), t.frames...)
}

// WrittenSamples returns the total samples per channel written so far.
func (t *LocalAudioTrack) WrittenSamples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, f := range t.frames {
		total += f.SamplesPerChannel()
	}
	return total
}
