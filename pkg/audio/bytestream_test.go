package audio_test

import (
	"bytes"
	"testing"

	"github.com/overlapai/voicelink/pkg/audio"
)

var testFormat = audio.Format{SampleRate: 24000, Channels: 1}

// pcm returns n bytes of deterministic PCM-ish data starting at seed.
func pcm(seed byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

// ─── TestByteStream_ExactFrame ───────────────────────────────────────────────

func TestByteStream_ExactFrame(t *testing.T) {
	t.Parallel()

	bs := audio.NewByteStream(testFormat, 4) // 8 bytes per frame
	frames := bs.Write(pcm(1, 8))

	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if !bytes.Equal(f.Data, pcm(1, 8)) {
		t.Fatalf("frame data mismatch: got %v", f.Data)
	}
	if f.SampleRate != 24000 || f.Channels != 1 {
		t.Fatalf("frame format: got %dHz/%dch", f.SampleRate, f.Channels)
	}
	if f.SamplesPerChannel() != 4 {
		t.Fatalf("SamplesPerChannel: want 4, got %d", f.SamplesPerChannel())
	}
}

// ─── TestByteStream_SplitsAcrossWrites ───────────────────────────────────────

func TestByteStream_SplitsAcrossWrites(t *testing.T) {
	t.Parallel()

	bs := audio.NewByteStream(testFormat, 4)

	if frames := bs.Write(pcm(1, 5)); len(frames) != 0 {
		t.Fatalf("want 0 frames from a partial write, got %d", len(frames))
	}

	// 5 buffered + 11 new = 16 bytes = 2 frames.
	frames := bs.Write(pcm(6, 11))
	if len(frames) != 2 {
		t.Fatalf("want 2 frames, got %d", len(frames))
	}

	want := append(pcm(1, 5), pcm(6, 11)...)
	got := append(append([]byte{}, frames[0].Data...), frames[1].Data...)
	if !bytes.Equal(got, want) {
		t.Fatalf("frame bytes out of order:\n got %v\nwant %v", got, want)
	}
}

// ─── TestByteStream_OrderPreserved ───────────────────────────────────────────

func TestByteStream_OrderPreserved(t *testing.T) {
	t.Parallel()

	bs := audio.NewByteStream(testFormat, 2) // 4 bytes per frame

	var all []byte
	var frames []audio.AudioFrame
	for i := byte(0); i < 10; i++ {
		chunk := pcm(i*16, 3)
		all = append(all, chunk...)
		frames = append(frames, bs.Write(chunk)...)
	}
	frames = append(frames, bs.Flush()...)

	var got []byte
	for _, f := range frames {
		got = append(got, f.Data...)
	}
	// Flush zero-pads the final frame; compare only the real payload.
	if !bytes.Equal(got[:len(all)], all) {
		t.Fatalf("re-framed bytes differ from input")
	}
	for _, tail := range got[len(all):] {
		if tail != 0 {
			t.Fatalf("flush padding must be zero, got %d", tail)
		}
	}
}

// ─── TestByteStream_FlushEmpty ───────────────────────────────────────────────

func TestByteStream_FlushEmpty(t *testing.T) {
	t.Parallel()

	bs := audio.NewByteStream(testFormat, 4)
	if frames := bs.Flush(); frames != nil {
		t.Fatalf("want nil from Flush on empty stream, got %d frames", len(frames))
	}
}

// ─── TestFrame_Duration ──────────────────────────────────────────────────────

func TestFrame_Duration(t *testing.T) {
	t.Parallel()

	f := audio.AudioFrame{Data: make([]byte, 2400*2), SampleRate: 24000, Channels: 1}
	if got := f.Duration().Milliseconds(); got != 100 {
		t.Fatalf("want 100ms frame, got %dms", got)
	}
}
