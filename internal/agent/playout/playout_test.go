package playout_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/overlapai/voicelink/internal/agent/playout"
	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
	rtcmock "github.com/overlapai/voicelink/pkg/rtc/mock"
)

var format = audio.Format{SampleRate: 24000, Channels: 1}

func newTrack(t *testing.T) *rtcmock.LocalAudioTrack {
	t.Helper()
	room := rtcmock.NewRoom("test-room")
	tr, err := room.Local().PublishAudioTrack(context.Background(), "agent-voice", format, rtc.SourceMicrophone)
	if err != nil {
		t.Fatalf("publish track: %v", err)
	}
	return tr.(*rtcmock.LocalAudioTrack)
}

func waitDone(t *testing.T, h *playout.Handle) {
	t.Helper()
	select {
	case <-h.WaitDone():
	case <-time.After(5 * time.Second):
		t.Fatal("handle did not become done")
	}
}

// recordingForwarder collects every chunk it receives from the text stream.
type recordingForwarder struct {
	mu     sync.Mutex
	chunks []string
}

func (f *recordingForwarder) Forward(ctx context.Context, textStream <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-textStream:
			if !ok {
				return
			}
			f.mu.Lock()
			f.chunks = append(f.chunks, s)
			f.mu.Unlock()
		}
	}
}

func (f *recordingForwarder) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.chunks, "")
}

// prefixAugmenter yields a fixed prefix before relaying the source stream.
type prefixAugmenter struct {
	prefix string
}

func (a *prefixAugmenter) Augment(ctx context.Context, textStream <-chan string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		select {
		case out <- a.prefix:
		case <-ctx.Done():
			return
		}
		for s := range textStream {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ─── TestPlay_WritesAudioAndCountsSamples ────────────────────────────────────

func TestPlay_WritesAudioAndCountsSamples(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	var (
		mu          sync.Mutex
		startedN    int
		stoppedN    int
		interrupted bool
	)
	p.OnStarted(func(*playout.Handle) {
		mu.Lock()
		startedN++
		mu.Unlock()
	})
	p.OnStopped(func(_ *playout.Handle, intr bool) {
		mu.Lock()
		stoppedN++
		interrupted = intr
		mu.Unlock()
	})

	textCh := make(chan string)
	close(textCh)
	audioCh := make(chan []byte, 3)
	for i := 0; i < 3; i++ {
		audioCh <- make([]byte, 4800) // 2400 samples each
	}
	close(audioCh)

	h := p.Play("item_1", 0, nil, textCh, audioCh)
	waitDone(t, h)

	if got, want := h.PlayedSamples(), int64(7200); got != want {
		t.Errorf("PlayedSamples = %d, want %d", got, want)
	}
	if got, want := track.WrittenSamples(), 7200; got != want {
		t.Errorf("track WrittenSamples = %d, want %d", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if startedN != 1 {
		t.Errorf("started callback fired %d times, want 1", startedN)
	}
	if stoppedN != 1 {
		t.Errorf("stopped callback fired %d times, want 1", stoppedN)
	}
	if interrupted {
		t.Error("stopped callback reported interrupted for a natural end")
	}
}

// ─── TestPlay_FrameTimestampsAccumulate ──────────────────────────────────────

func TestPlay_FrameTimestampsAccumulate(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	textCh := make(chan string)
	close(textCh)
	audioCh := make(chan []byte, 3)
	for i := 0; i < 3; i++ {
		audioCh <- make([]byte, 4800) // 100 ms at 24 kHz mono
	}
	close(audioCh)

	h := p.Play("item_1", 0, nil, textCh, audioCh)
	waitDone(t, h)

	frames := track.Frames()
	if len(frames) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		want := time.Duration(i) * 100 * time.Millisecond
		if f.Timestamp != want {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}
}

// ─── TestInterrupt_StopsEmissionAndIsIdempotent ──────────────────────────────

func TestInterrupt_StopsEmissionAndIsIdempotent(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	var (
		mu          sync.Mutex
		stoppedN    int
		interrupted bool
	)
	p.OnStopped(func(_ *playout.Handle, intr bool) {
		mu.Lock()
		stoppedN++
		interrupted = intr
		mu.Unlock()
	})

	textCh := make(chan string)
	close(textCh)
	audioCh := make(chan []byte)

	h := p.Play("item_1", 0, nil, textCh, audioCh)

	audioCh <- make([]byte, 4800)
	// Wait until the frame has been written before interrupting.
	deadline := time.Now().Add(time.Second)
	for h.PlayedSamples() < 2400 {
		if time.Now().After(deadline) {
			t.Fatal("frame was never written")
		}
		time.Sleep(time.Millisecond)
	}

	h.Interrupt()
	h.Interrupt() // second call is a no-op
	waitDone(t, h)
	close(audioCh)

	if !h.Interrupted() {
		t.Error("Interrupted() = false after Interrupt")
	}
	if got, want := h.PlayedSamples(), int64(2400); got != want {
		t.Errorf("PlayedSamples = %d, want %d", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if stoppedN != 1 {
		t.Errorf("stopped callback fired %d times, want 1", stoppedN)
	}
	if !interrupted {
		t.Error("stopped callback did not report interrupted")
	}
}

// ─── TestPlay_NewUtteranceInterruptsPrevious ─────────────────────────────────

func TestPlay_NewUtteranceInterruptsPrevious(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	var (
		mu    sync.Mutex
		order []string
	)
	p.OnStarted(func(h *playout.Handle) {
		mu.Lock()
		order = append(order, "started:"+h.ItemID())
		mu.Unlock()
	})
	p.OnStopped(func(h *playout.Handle, intr bool) {
		mu.Lock()
		if intr {
			order = append(order, "stopped-interrupted:"+h.ItemID())
		} else {
			order = append(order, "stopped:"+h.ItemID())
		}
		mu.Unlock()
	})

	text1 := make(chan string)
	close(text1)
	audio1 := make(chan []byte, 1)
	audio1 <- make([]byte, 4800)
	// audio1 stays open: the first utterance never ends on its own.

	h1 := p.Play("item_1", 0, nil, text1, audio1)

	deadline := time.Now().Add(time.Second)
	for h1.PlayedSamples() < 2400 {
		if time.Now().After(deadline) {
			t.Fatal("first utterance never started")
		}
		time.Sleep(time.Millisecond)
	}

	text2 := make(chan string)
	close(text2)
	audio2 := make(chan []byte, 1)
	audio2 <- make([]byte, 2400)
	close(audio2)

	h2 := p.Play("item_2", 0, nil, text2, audio2)

	waitDone(t, h1)
	waitDone(t, h2)
	close(audio1)

	if !h1.Interrupted() {
		t.Error("first handle was not interrupted by the second Play")
	}
	if h2.Interrupted() {
		t.Error("second handle reports interrupted")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"started:item_1",
		"stopped-interrupted:item_1",
		"started:item_2",
		"stopped:item_2",
	}
	if len(order) != len(want) {
		t.Fatalf("callback order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("callback order = %v, want %v", order, want)
		}
	}
}

// ─── TestPlay_AugmenterRunsBeforeOriginalText ────────────────────────────────

func TestPlay_AugmenterRunsBeforeOriginalText(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format, playout.WithAugmenter(&prefixAugmenter{prefix: "Context. "}))

	fwd := &recordingForwarder{}

	textCh := make(chan string, 2)
	textCh <- "Hello "
	textCh <- "world."
	close(textCh)
	audioCh := make(chan []byte, 1)
	audioCh <- make([]byte, 4800)
	close(audioCh)

	h := p.Play("item_1", 0, fwd, textCh, audioCh)
	waitDone(t, h)

	if got, want := fwd.joined(), "Context. Hello world."; got != want {
		t.Errorf("forwarded text = %q, want %q", got, want)
	}
}

// ─── TestPlay_NilForwarderDrainsTextStream ───────────────────────────────────

func TestPlay_NilForwarderDrainsTextStream(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	// Unbuffered: the producer would block forever if nobody drained it.
	textCh := make(chan string)
	audioCh := make(chan []byte, 1)
	audioCh <- make([]byte, 2400)
	close(audioCh)

	h := p.Play("item_1", 0, nil, textCh, audioCh)

	select {
	case textCh <- "never forwarded":
	case <-time.After(time.Second):
		t.Fatal("text stream was not drained")
	}
	close(textCh)
	waitDone(t, h)
}

// ─── TestClose_InterruptsCurrent ─────────────────────────────────────────────

func TestClose_InterruptsCurrent(t *testing.T) {
	t.Parallel()

	track := newTrack(t)
	p := playout.New(track, format)

	textCh := make(chan string)
	close(textCh)
	audioCh := make(chan []byte)

	h := p.Play("item_1", 0, nil, textCh, audioCh)
	p.Close()
	waitDone(t, h)
	close(audioCh)

	if !h.Interrupted() {
		t.Error("Close did not interrupt the live handle")
	}
	if got := p.Play("item_2", 0, nil, nil, nil); !got.Done() || !got.Interrupted() {
		t.Error("Play after Close should return an already-done, interrupted handle")
	}
}
