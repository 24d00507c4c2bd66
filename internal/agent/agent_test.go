package agent_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/overlapai/voicelink/internal/agent"
	"github.com/overlapai/voicelink/internal/transcript"
	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
	rtcmock "github.com/overlapai/voicelink/pkg/rtc/mock"
	rtmock "github.com/overlapai/voicelink/pkg/realtime/mock"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// newStartedAgent starts an agent against a room holding one remote
// participant with an unsubscribed microphone publication.
func newStartedAgent(t *testing.T, opts ...agent.Option) (*agent.Agent, *rtcmock.Room, *rtmock.Session, *rtcmock.RemoteParticipant, *rtcmock.TrackPublication) {
	t.Helper()

	sess := rtmock.NewSession()
	room := rtcmock.NewRoom("test-room")
	p1 := room.AddRemoteParticipant("p1")
	pub := p1.AddMicrophonePublication(24000, 1)

	opts = append([]agent.Option{agent.WithTranscription(transcript.Options{})}, opts...)
	a := agent.New(sess, opts...)
	if err := a.Start(context.Background(), room, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, room, sess, p1, pub
}

// emitSubscribed simulates media arrival for a subscribed publication.
func emitSubscribed(room *rtcmock.Room, p *rtcmock.RemoteParticipant, pub *rtcmock.TrackPublication) {
	room.Events().Emit(rtc.Event{Kind: rtc.EventTrackSubscribed, Participant: p, Publication: pub})
}

// pcmFrame builds a 24 kHz mono frame of n samples, every byte set to marker.
func pcmFrame(n int, marker byte) audio.AudioFrame {
	data := make([]byte, 2*n)
	for i := range data {
		data[i] = marker
	}
	return audio.AudioFrame{Data: data, SampleRate: 24000, Channels: 1}
}

// ─── TestStart ───────────────────────────────────────────────────────────────

func TestStart_SecondStartFails(t *testing.T) {
	t.Parallel()

	a, room, _, _, _ := newStartedAgent(t)

	if got := a.State(); got != agent.StateListening {
		t.Errorf("state after Start = %v, want listening", got)
	}
	if err := a.Start(context.Background(), room, ""); err != agent.ErrAlreadyStarted {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_LinksFirstRemoteParticipant(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	room := rtcmock.NewRoom("test-room")
	p1 := room.AddRemoteParticipant("p1")
	pub1 := p1.AddMicrophonePublication(24000, 1)
	p2 := room.AddRemoteParticipant("p2")
	pub2 := p2.AddMicrophonePublication(24000, 1)

	a := agent.New(sess, agent.WithTranscription(transcript.Options{}))
	if err := a.Start(context.Background(), room, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if got := a.LinkedParticipant(); got != "p1" {
		t.Errorf("linked participant = %q, want %q", got, "p1")
	}
	if got := len(pub1.SetSubscribedCalls); got != 1 || !pub1.SetSubscribedCalls[0] {
		t.Errorf("p1 microphone SetSubscribed calls = %v, want [true]", pub1.SetSubscribedCalls)
	}
	if got := len(pub2.SetSubscribedCalls); got != 0 {
		t.Errorf("p2 microphone was subscribed (%v), should be untouched", pub2.SetSubscribedCalls)
	}
}

func TestStart_ExplicitParticipantWins(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	room := rtcmock.NewRoom("test-room")
	room.AddRemoteParticipant("p1")
	p2 := room.AddRemoteParticipant("p2")
	p2.AddMicrophonePublication(24000, 1)

	a := agent.New(sess, agent.WithTranscription(transcript.Options{}))
	if err := a.Start(context.Background(), room, "p2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if got := a.LinkedParticipant(); got != "p2" {
		t.Errorf("linked participant = %q, want %q", got, "p2")
	}
}

// ─── TestLink ────────────────────────────────────────────────────────────────

func TestLink_UnknownIdentityLeavesLinkUntouched(t *testing.T) {
	t.Parallel()

	a, _, _, _, _ := newStartedAgent(t)

	a.Link("ghost")
	if got := a.LinkedParticipant(); got != "p1" {
		t.Errorf("linked participant after bad Link = %q, want %q", got, "p1")
	}
	if got := a.State(); got != agent.StateListening {
		t.Errorf("state after bad Link = %v, want listening", got)
	}
}

func TestLink_NewJoinerLinkedWhenNoneLinked(t *testing.T) {
	t.Parallel()

	sess := rtmock.NewSession()
	room := rtcmock.NewRoom("test-room")

	a := agent.New(sess, agent.WithTranscription(transcript.Options{}))
	if err := a.Start(context.Background(), room, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if got := a.LinkedParticipant(); got != "" {
		t.Fatalf("linked participant in empty room = %q, want none", got)
	}

	joiner := room.AddRemoteParticipant("late")
	pub := joiner.AddMicrophonePublication(24000, 1)
	room.EmitParticipantConnected(joiner)

	if got := a.LinkedParticipant(); got != "late" {
		t.Errorf("linked participant after join = %q, want %q", got, "late")
	}
	if len(pub.SetSubscribedCalls) != 1 {
		t.Errorf("joiner microphone SetSubscribed calls = %v, want one", pub.SetSubscribedCalls)
	}
}

// ─── TestIngest ──────────────────────────────────────────────────────────────

func TestIngest_FramesArriveInOrder(t *testing.T) {
	t.Parallel()

	a, room, sess, p1, pub := newStartedAgent(t)
	_ = a
	emitSubscribed(room, p1, pub)

	for i := byte(1); i <= 3; i++ {
		pub.PushFrame(pcmFrame(2400, i))
	}

	waitFor(t, func() bool { return len(sess.AppendedFramesSnapshot()) >= 3 },
		"frames did not reach the session input buffer")

	frames := sess.AppendedFramesSnapshot()
	for i, f := range frames[:3] {
		if f.Data[0] != byte(i+1) {
			t.Fatalf("frame %d carries marker %d, want %d", i, f.Data[0], i+1)
		}
		if f.SamplesPerChannel() != 2400 {
			t.Errorf("frame %d has %d samples, want 2400", i, f.SamplesPerChannel())
		}
	}
}

func TestIngest_ResubscriptionReplacesConsumer(t *testing.T) {
	t.Parallel()

	a, room, sess, p1, pub := newStartedAgent(t)
	_ = a
	emitSubscribed(room, p1, pub)

	pub.PushFrame(pcmFrame(2400, 1))
	pub.PushFrame(pcmFrame(2400, 2))
	waitFor(t, func() bool { return len(sess.AppendedFramesSnapshot()) >= 2 },
		"initial frames did not arrive")

	// The participant republishes its microphone; the agent must swap to the
	// new track's consumer.
	pub2 := p1.AddMicrophonePublication(24000, 1)
	if err := pub2.SetSubscribed(true); err != nil {
		t.Fatalf("SetSubscribed: %v", err)
	}
	emitSubscribed(room, p1, pub2)

	pub2.PushFrame(pcmFrame(2400, 3))
	pub2.PushFrame(pcmFrame(2400, 4))
	waitFor(t, func() bool { return len(sess.AppendedFramesSnapshot()) >= 4 },
		"frames from the new track did not arrive")

	frames := sess.AppendedFramesSnapshot()
	for i, f := range frames[:4] {
		if f.Data[0] != byte(i+1) {
			t.Fatalf("frame order after resubscription = %v, frame %d has marker %d",
				markers(frames), i, f.Data[0])
		}
	}
}

func markers(frames []audio.AudioFrame) []byte {
	out := make([]byte, len(frames))
	for i, f := range frames {
		out[i] = f.Data[0]
	}
	return out
}

// ─── TestBargeIn ─────────────────────────────────────────────────────────────

func TestBargeIn_TruncatesAndReturnsToListening(t *testing.T) {
	t.Parallel()

	a, room, sess, _, _ := newStartedAgent(t)

	var (
		mu     sync.Mutex
		events []agent.Event
	)
	record := func(ev agent.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}
	a.Events().Subscribe(agent.EventUserStartedSpeaking, record)
	a.Events().Subscribe(agent.EventAgentStoppedSpeaking, record)

	content := sess.EmitResponseContent("abc", 0)
	for i := 0; i < 5; i++ {
		content.Audio <- make([]byte, 4800) // 2400 samples each
	}

	track := room.Local().PublishedTracks[0]
	waitFor(t, func() bool { return track.WrittenSamples() == 12000 },
		"utterance audio was not played out")
	waitFor(t, func() bool { return a.State() == agent.StateSpeaking },
		"agent did not enter speaking")
	// The track records a frame just before the handle's played counter
	// advances; let the playout task settle on the empty stream.
	time.Sleep(20 * time.Millisecond)

	sess.EmitInputSpeechStarted()

	calls := sess.TruncateCallsSnapshot()
	if len(calls) != 1 {
		t.Fatalf("truncate calls = %d, want 1", len(calls))
	}
	want := rtmock.TruncateCall{ItemID: "abc", ContentIndex: 0, AudioEndMS: 500}
	if calls[0] != want {
		t.Errorf("truncate call = %+v, want %+v", calls[0], want)
	}
	if got := a.State(); got != agent.StateListening {
		t.Errorf("state after barge-in = %v, want listening", got)
	}

	// A second speech-start must not truncate again: the handle is cleared.
	sess.EmitInputSpeechStarted()
	if got := len(sess.TruncateCallsSnapshot()); got != 1 {
		t.Errorf("truncate calls after second speech start = %d, want 1", got)
	}

	close(content.Audio)
	close(content.Text)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if ev.Kind == agent.EventAgentStoppedSpeaking {
				return true
			}
		}
		return false
	}, "agent stopped speaking event not emitted")

	mu.Lock()
	defer mu.Unlock()
	if events[0].Kind != agent.EventUserStartedSpeaking {
		t.Errorf("first event = %v, want user_started_speaking", events[0].Kind)
	}
	for _, ev := range events {
		if ev.Kind == agent.EventAgentStoppedSpeaking && !ev.Interrupted {
			t.Error("agent_stopped_speaking did not report interrupted")
		}
	}
}

// ─── TestStates ──────────────────────────────────────────────────────────────

func TestStates_FullTurnWalksLegalEdgesOnly(t *testing.T) {
	t.Parallel()

	a, room, sess, _, _ := newStartedAgent(t)

	content := sess.EmitResponseContent("item_1", 0)
	content.Audio <- make([]byte, 4800)
	close(content.Audio)
	close(content.Text)

	waitFor(t, func() bool { return len(room.Local().States()) >= 4 },
		"expected four state publications")

	states := room.Local().States()
	want := []string{"initializing", "listening", "speaking", "listening"}
	if len(states) < len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}

	legal := map[[2]string]bool{
		{"initializing", "listening"}: true,
		{"listening", "speaking"}:     true,
		{"speaking", "listening"}:     true,
	}
	for i := 1; i < len(states); i++ {
		if !legal[[2]string{states[i-1], states[i]}] {
			t.Errorf("illegal published edge %s→%s", states[i-1], states[i])
		}
	}

	if got := a.State(); got != agent.StateListening {
		t.Errorf("final state = %v, want listening", got)
	}
}

func TestStates_DebounceCancelsPendingPublish(t *testing.T) {
	t.Parallel()

	a, room, sess, _, _ := newStartedAgent(t, agent.WithStatePublishDelay(40*time.Millisecond))

	// Walk a full turn quickly: speaking's pending publish should be
	// superseded by listening before the delay elapses.
	content := sess.EmitResponseContent("item_1", 0)
	content.Audio <- make([]byte, 4800)
	waitFor(t, func() bool { return a.State() == agent.StateSpeaking },
		"agent did not enter speaking")
	sess.EmitInputSpeechStarted()
	close(content.Audio)
	close(content.Text)

	waitFor(t, func() bool {
		states := room.Local().States()
		return len(states) > 0 && states[len(states)-1] == "listening"
	}, "listening was never published")

	time.Sleep(60 * time.Millisecond)
	states := room.Local().States()
	if states[len(states)-1] != "listening" {
		t.Errorf("last published state = %q, want listening (states %v)", states[len(states)-1], states)
	}
}

// ─── TestUserTranscription ───────────────────────────────────────────────────

func TestUserTranscription_InterimThenFinal(t *testing.T) {
	t.Parallel()

	opts := transcript.Options{UserTranscription: true}
	a, room, sess, p1, pub := newStartedAgent(t, agent.WithTranscription(opts))
	_ = a
	emitSubscribed(room, p1, pub)

	sess.EmitInputSpeechCommitted()
	sess.EmitTranscriptionCompleted("hello from the room", "en")

	waitFor(t, func() bool {
		segs := room.Local().SegmentsSnapshot()
		return len(segs) >= 2 && segs[len(segs)-1].Final
	}, "transcript segments were not forwarded")

	segs := room.Local().SegmentsSnapshot()
	first, last := segs[0], segs[len(segs)-1]
	if first.Final || first.Text != "" {
		t.Errorf("first segment = %+v, want empty interim", first)
	}
	if !last.Final || last.Text != "hello from the room" || last.Language != "en" {
		t.Errorf("final segment = %+v, want final %q", last, "hello from the room")
	}
	if first.ID != last.ID {
		t.Errorf("interim ID %q != final ID %q; revisions must share an ID", first.ID, last.ID)
	}
	if last.ParticipantIdentity != "p1" {
		t.Errorf("segment attributed to %q, want %q", last.ParticipantIdentity, "p1")
	}
}
