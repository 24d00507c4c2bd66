// Package agent implements the voicelink orchestrator: it links a remote
// participant's microphone to a speech-to-speech backend session and plays the
// backend's responses into the room, with barge-in-correct turn taking.
//
// The two primary abstractions are:
//
//   - [Agent] — owns the participant link, the audio ingest pipeline, the
//     turn/interruption [State] machine, and the playout controller for one
//     room/session pair.
//   - [Registry] — typed turn notifications (user/agent started/stopped
//     speaking) for embedders of the agent.
//
// This package lives under internal/ because it encapsulates application-private
// orchestration logic and is not intended to be imported by external code.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/overlapai/voicelink/internal/agent/playout"
	"github.com/overlapai/voicelink/internal/observe"
	"github.com/overlapai/voicelink/internal/transcript"
	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/realtime"
	"github.com/overlapai/voicelink/pkg/rtc"
)

// ErrAlreadyStarted is returned by [Agent.Start] when the agent has already
// been started.
var ErrAlreadyStarted = errors.New("agent: already started")

const (
	// DefaultInputFrameSamples is the per-channel frame size appended to the
	// session input buffer: 2400 samples, 100 ms at 24 kHz.
	DefaultInputFrameSamples = 2400

	// defaultIngestBuffer bounds the microphone hand-off channel. When the
	// drain loop falls behind, the oldest queued frame is dropped (counted
	// and logged) rather than growing the queue without limit.
	defaultIngestBuffer = 256

	defaultTrackName = "agent-voice"
)

// DefaultFormat is the audio format spoken on both pipeline ends.
var DefaultFormat = audio.Format{SampleRate: 24000, Channels: 1}

// Agent bridges one room and one backend session.
//
// All exported methods are safe for concurrent use. A zero Agent is not
// usable; construct with [New].
type Agent struct {
	session realtime.Session

	format            audio.Format
	frameSamples      int
	trackName         string
	transcription     transcript.Options
	augmenter         playout.TextStreamAugmenter
	statePublishDelay time.Duration
	ingestBuffer      int
	log               *slog.Logger
	metrics           *observe.Metrics

	events *Registry

	ctx    context.Context
	cancel context.CancelFunc
	frames chan audio.AudioFrame
	wg     sync.WaitGroup

	droppedFrames atomic.Int64

	mu             sync.Mutex
	started        bool
	room           rtc.Room
	linkedIdentity string
	ingestCancel   context.CancelFunc
	userFwd        *transcript.UserForwarder
	localTrack     rtc.LocalAudioTrack
	play           *playout.Playout
	handle         *playout.Handle
	state          State
	statePending   context.CancelFunc
	speakingSince  time.Time
}

// Option configures an [Agent] during construction.
type Option func(*Agent)

// WithAudioFormat sets the audio format used on both ends of the pipeline and
// the per-channel frame size appended to the session input buffer. The
// defaults are 24 kHz mono and 2400 samples (100 ms).
func WithAudioFormat(f audio.Format, frameSamples int) Option {
	return func(a *Agent) {
		a.format = f
		a.frameSamples = frameSamples
	}
}

// WithTranscription sets the transcript forwarding options. The default is
// [transcript.DefaultOptions].
func WithTranscription(opts transcript.Options) Option {
	return func(a *Agent) { a.transcription = opts }
}

// WithAugmenter installs a text stream augmenter applied to every agent
// utterance before transcript forwarding. The default is the identity.
func WithAugmenter(aug playout.TextStreamAugmenter) Option {
	return func(a *Agent) { a.augmenter = aug }
}

// WithStatePublishDelay delays each state publication by d; a newer state
// request cancels the pending publish (last-write-wins debounce). The default
// is no delay.
func WithStatePublishDelay(d time.Duration) Option {
	return func(a *Agent) { a.statePublishDelay = d }
}

// WithTrackName sets the published output track's name. The default is
// "agent-voice".
func WithTrackName(name string) Option {
	return func(a *Agent) { a.trackName = name }
}

// WithIngestBuffer sets the capacity of the microphone hand-off channel.
// The default is 256 frames.
func WithIngestBuffer(n int) Option {
	return func(a *Agent) { a.ingestBuffer = n }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// WithMetrics sets the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an Agent speaking to the given backend session.
func New(session realtime.Session, opts ...Option) *Agent {
	a := &Agent{
		session:       session,
		format:        DefaultFormat,
		frameSamples:  DefaultInputFrameSamples,
		trackName:     defaultTrackName,
		transcription: transcript.DefaultOptions(),
		ingestBuffer:  defaultIngestBuffer,
		log:           slog.Default(),
		events:        NewRegistry(),
		state:         StateInitializing,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.frames = make(chan audio.AudioFrame, a.ingestBuffer)
	return a
}

// Events returns the agent's turn notification registry.
func (a *Agent) Events() *Registry { return a.events }

// State returns the agent's current presence state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LinkedParticipant returns the identity of the currently linked remote
// participant, or the empty string when none is linked.
func (a *Agent) LinkedParticipant() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.linkedIdentity
}

// DroppedFrames returns the number of microphone frames dropped from the
// hand-off channel under overflow.
func (a *Agent) DroppedFrames() int64 {
	return a.droppedFrames.Load()
}

// Start connects the agent to the room: publishes the output audio track,
// wires room and session events, links participantIdentity's microphone (or
// the first remote participant when the identity is empty), and transitions
// to listening once the output track has a subscriber.
//
// Starting an already-started agent returns [ErrAlreadyStarted]. Background
// work continues after Start returns until [Agent.Close].
func (a *Agent) Start(ctx context.Context, room rtc.Room, participantIdentity string) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.room = room
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Unlock()

	a.publishState(StateInitializing)

	track, err := room.LocalParticipant().PublishAudioTrack(ctx, a.trackName, a.format, rtc.SourceMicrophone)
	if err != nil {
		return fmt.Errorf("agent: publish output track: %w", err)
	}

	var playOpts []playout.Option
	playOpts = append(playOpts, playout.WithLogger(a.log))
	if a.augmenter != nil {
		playOpts = append(playOpts, playout.WithAugmenter(a.augmenter))
	}
	play := playout.New(track, a.format, playOpts...)
	play.OnStarted(a.onPlayoutStarted)
	play.OnStopped(a.onPlayoutStopped)

	a.mu.Lock()
	a.localTrack = track
	a.play = play
	a.mu.Unlock()

	a.session.Subscribe(realtime.EventResponseContentAdded, a.onResponseContent)
	a.session.Subscribe(realtime.EventInputSpeechStarted, a.onInputSpeechStarted)
	a.session.Subscribe(realtime.EventInputSpeechCommitted, a.onInputSpeechCommitted)
	a.session.Subscribe(realtime.EventInputSpeechTranscriptionCompleted, a.onInputTranscriptionCompleted)

	events := room.Events()
	events.Subscribe(rtc.EventParticipantConnected, a.onParticipantConnected)
	events.Subscribe(rtc.EventParticipantDisconnected, a.onParticipantDisconnected)
	events.Subscribe(rtc.EventTrackPublished, a.onTrackPublished)
	events.Subscribe(rtc.EventTrackSubscribed, a.onTrackSubscribed)

	a.wg.Add(1)
	go a.drainLoop()

	if participantIdentity == "" {
		if remotes := room.RemoteParticipants(); len(remotes) > 0 {
			participantIdentity = remotes[0].Identity()
		}
	}
	if participantIdentity != "" {
		a.Link(participantIdentity)
	}

	if err := track.WaitForSubscription(ctx); err != nil {
		return fmt.Errorf("agent: wait for output track subscription: %w", err)
	}
	a.setState(StateListening)

	a.log.Info("agent started",
		"room", room.Name(),
		"participant", a.LinkedParticipant(),
		"track", track.ID())
	return nil
}

// Close stops all background work and unpublishes the output track. The
// backend session is owned by the caller and is not closed here.
func (a *Agent) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	if a.statePending != nil {
		a.statePending()
		a.statePending = nil
	}
	play := a.play
	fwd := a.userFwd
	a.userFwd = nil
	track := a.localTrack
	a.mu.Unlock()

	a.cancel()
	if play != nil {
		play.Close()
	}
	if fwd != nil {
		fwd.Close()
	}
	a.wg.Wait()
	if track != nil {
		return track.Close()
	}
	return nil
}

// Link binds the agent to the remote participant with the given identity and
// subscribes its microphone publications. An identity not present in the
// room's live membership is logged and leaves the link untouched.
func (a *Agent) Link(identity string) {
	a.mu.Lock()
	room := a.room
	a.mu.Unlock()
	if room == nil {
		return
	}
	p := room.RemoteParticipant(identity)
	if p == nil {
		a.log.Error("agent: link: participant not in room", "identity", identity)
		return
	}

	a.mu.Lock()
	a.linkedIdentity = identity
	a.mu.Unlock()
	a.log.Info("agent: linked participant", "identity", identity)

	a.subscribeMicrophone(p)
}

// subscribeMicrophone subscribes every not-yet-subscribed microphone
// publication of p. Media arrival is signalled by a track_subscribed event,
// which starts the ingest task.
func (a *Agent) subscribeMicrophone(p rtc.RemoteParticipant) {
	for _, pub := range p.TrackPublications() {
		if pub.Source() != rtc.SourceMicrophone || pub.IsSubscribed() {
			continue
		}
		if err := pub.SetSubscribed(true); err != nil {
			a.log.Warn("agent: subscribe microphone", "track", pub.SID(), "error", err)
		}
	}
}

// ─── Room event handlers ─────────────────────────────────────────────────────

func (a *Agent) onParticipantConnected(ev rtc.Event) {
	a.metrics.ActiveParticipants.Add(a.ctx, 1)

	a.mu.Lock()
	linked := a.linkedIdentity
	a.mu.Unlock()
	if linked == "" {
		a.Link(ev.Participant.Identity())
	}
}

func (a *Agent) onParticipantDisconnected(ev rtc.Event) {
	a.metrics.ActiveParticipants.Add(a.ctx, -1)

	a.mu.Lock()
	if ev.Participant.Identity() != a.linkedIdentity {
		a.mu.Unlock()
		return
	}
	a.linkedIdentity = ""
	cancel := a.ingestCancel
	a.ingestCancel = nil
	fwd := a.userFwd
	a.userFwd = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fwd != nil {
		fwd.Close()
	}
	a.log.Info("agent: linked participant left", "identity", ev.Participant.Identity())
}

func (a *Agent) onTrackPublished(ev rtc.Event) {
	a.mu.Lock()
	linked := a.linkedIdentity
	a.mu.Unlock()
	if ev.Participant.Identity() != linked {
		return
	}
	if ev.Publication.Source() != rtc.SourceMicrophone || ev.Publication.IsSubscribed() {
		return
	}
	if err := ev.Publication.SetSubscribed(true); err != nil {
		a.log.Warn("agent: subscribe microphone", "track", ev.Publication.SID(), "error", err)
	}
}

func (a *Agent) onTrackSubscribed(ev rtc.Event) {
	a.mu.Lock()
	linked := a.linkedIdentity
	a.mu.Unlock()
	if ev.Participant.Identity() != linked {
		return
	}
	if ev.Publication.Source() != rtc.SourceMicrophone {
		return
	}
	a.startIngest(ev.Participant, ev.Publication)
}

// startIngest replaces the microphone consumer: the previous ingest task is
// cancelled before the new one starts, so each physical track has exactly one
// reader.
func (a *Agent) startIngest(p rtc.RemoteParticipant, pub rtc.TrackPublication) {
	track := pub.Track()
	if track == nil {
		a.log.Warn("agent: subscribed publication has no media yet", "track", pub.SID())
		return
	}

	a.mu.Lock()
	if a.ingestCancel != nil {
		a.ingestCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.ingestCancel = cancel

	oldFwd := a.userFwd
	a.userFwd = nil
	if a.transcription.UserTranscription {
		a.userFwd = transcript.NewUserForwarder(a.room.LocalParticipant(), p.Identity(), pub.SID())
	}
	a.mu.Unlock()

	if oldFwd != nil {
		oldFwd.Close()
	}

	stream := track.Stream(ctx, a.format)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for f := range stream {
			a.offerFrame(f)
		}
	}()

	a.log.Info("agent: microphone ingest started", "track", pub.SID(), "participant", p.Identity())
}

// offerFrame enqueues a frame on the hand-off channel, dropping the oldest
// queued frame on overflow so the channel never blocks the track reader.
func (a *Agent) offerFrame(f audio.AudioFrame) {
	select {
	case a.frames <- f:
		return
	default:
	}

	select {
	case <-a.frames:
		a.droppedFrames.Add(1)
		a.metrics.IngestDrops.Add(a.ctx, 1)
		a.log.Debug("agent: ingest overflow, dropped oldest frame", "dropped_total", a.droppedFrames.Load())
	default:
	}

	select {
	case a.frames <- f:
	default:
		a.droppedFrames.Add(1)
		a.metrics.IngestDrops.Add(a.ctx, 1)
	}
}

// drainLoop is the single consumer of the hand-off channel: it re-frames
// arriving audio to the session's frame size and appends it to the input
// buffer, in arrival order.
func (a *Agent) drainLoop() {
	defer a.wg.Done()
	bs := audio.NewByteStream(a.format, a.frameSamples)
	for {
		select {
		case <-a.ctx.Done():
			return
		case f := <-a.frames:
			for _, frame := range bs.Write(f.Data) {
				if err := a.session.AppendInputAudio(frame); err != nil {
					a.log.Warn("agent: append input audio", "error", err)
					continue
				}
				a.metrics.IngestFrames.Add(a.ctx, 1)
			}
		}
	}
}

// ─── Session event handlers ──────────────────────────────────────────────────

func (a *Agent) onResponseContent(ev realtime.Event) {
	c := ev.Content
	if c == nil {
		return
	}

	a.mu.Lock()
	play := a.play
	track := a.localTrack
	a.mu.Unlock()
	if play == nil {
		return
	}

	var fwd playout.TranscriptForwarder
	if a.transcription.AgentTranscription {
		fwd = transcript.NewAgentForwarder(a.room.LocalParticipant(), track.ID(), a.transcription)
	}

	h := play.Play(c.ItemID, c.ContentIndex, fwd, c.TextStream, c.AudioStream)
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()
}

// onInputSpeechStarted implements barge-in: the live utterance is interrupted
// exactly once, the backend's conversation record is truncated to the audio
// position the user actually heard, and the agent returns to listening.
func (a *Agent) onInputSpeechStarted(realtime.Event) {
	a.events.Emit(Event{Kind: EventUserStartedSpeaking})

	a.mu.Lock()
	h := a.handle
	a.handle = nil
	a.mu.Unlock()
	if h == nil || h.Done() {
		return
	}

	h.Interrupt()
	audioEndMS := h.PlayedSamples() * 1000 / int64(a.format.SampleRate)
	if err := a.session.TruncateItem(a.ctx, h.ItemID(), h.ContentIndex(), audioEndMS); err != nil {
		a.log.Warn("agent: truncate item",
			"item_id", h.ItemID(),
			"audio_end_ms", audioEndMS,
			"error", err)
	}
	a.metrics.Interruptions.Add(a.ctx, 1)
	a.setState(StateListening)
}

func (a *Agent) onInputSpeechCommitted(realtime.Event) {
	a.events.Emit(Event{Kind: EventUserStoppedSpeaking})

	a.mu.Lock()
	fwd := a.userFwd
	a.mu.Unlock()
	if fwd != nil {
		fwd.Interim()
	}
}

func (a *Agent) onInputTranscriptionCompleted(ev realtime.Event) {
	a.mu.Lock()
	fwd := a.userFwd
	a.mu.Unlock()
	if fwd != nil {
		fwd.Final(ev.Transcript, ev.Language)
	}
}

// ─── Playout callbacks ───────────────────────────────────────────────────────

func (a *Agent) onPlayoutStarted(*playout.Handle) {
	a.mu.Lock()
	a.speakingSince = time.Now()
	a.mu.Unlock()

	a.setState(StateSpeaking)
	a.events.Emit(Event{Kind: EventAgentStartedSpeaking})
}

func (a *Agent) onPlayoutStopped(h *playout.Handle, interrupted bool) {
	a.mu.Lock()
	if a.handle == h {
		a.handle = nil
	}
	since := a.speakingSince
	a.speakingSince = time.Time{}
	a.mu.Unlock()

	if !since.IsZero() {
		outcome := "completed"
		if interrupted {
			outcome = "interrupted"
		}
		a.metrics.RecordUtterance(a.ctx, outcome, time.Since(since).Seconds())
	}

	a.setState(StateListening)
	a.events.Emit(Event{Kind: EventAgentStoppedSpeaking, Interrupted: interrupted})
}

// ─── State machine ───────────────────────────────────────────────────────────

// setState moves the agent along a legal state edge and publishes the new
// state. Same-state requests are no-ops; illegal edges are logged and ignored.
func (a *Agent) setState(to State) {
	a.mu.Lock()
	from := a.state
	if from == to {
		a.mu.Unlock()
		return
	}
	if !legalTransition(from, to) {
		a.mu.Unlock()
		a.log.Warn("agent: illegal state transition ignored", "from", from.String(), "to", to.String())
		return
	}
	a.state = to
	a.mu.Unlock()

	a.publishState(to)
}

// publishState publishes s as the agent-state attribute. With a configured
// delay the publish happens on a cancelable task and a newer request cancels
// the pending one (last-write-wins debounce); without a delay it is applied
// inline to preserve ordering.
func (a *Agent) publishState(s State) {
	a.mu.Lock()
	if a.statePending != nil {
		a.statePending()
		a.statePending = nil
	}
	delay := a.statePublishDelay
	if delay <= 0 {
		a.mu.Unlock()
		a.applyState(a.ctx, s)
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.statePending = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		a.applyState(ctx, s)
	}()
}

func (a *Agent) applyState(ctx context.Context, s State) {
	attrs := map[string]string{rtc.AttributeAgentState: s.String()}
	if err := a.room.LocalParticipant().SetAttributes(ctx, attrs); err != nil {
		a.log.Warn("agent: publish state", "state", s.String(), "error", err)
		return
	}
	a.metrics.RecordStatePublish(ctx, s.String())
}
