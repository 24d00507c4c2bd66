package audio

// ByteStream re-frames an arbitrary sequence of PCM byte chunks into
// fixed-size frames of exactly samplesPerChannel samples per channel.
//
// The realtime session requires its input buffer to be appended in uniform
// frames (100 ms at 24 kHz mono by default), while room tracks deliver audio
// in whatever chunk size the transport produced. Write buffers the remainder
// between calls, so frames are emitted in strict arrival order with no drops.
//
// A ByteStream is owned by a single pipeline task; it is not safe for
// concurrent use.
type ByteStream struct {
	format     Format
	frameBytes int
	buf        []byte
}

// NewByteStream creates a ByteStream that emits frames of samplesPerChannel
// samples per channel in the given format.
func NewByteStream(format Format, samplesPerChannel int) *ByteStream {
	return &ByteStream{
		format:     format,
		frameBytes: samplesPerChannel * format.Channels * 2,
	}
}

// Write appends p to the internal buffer and returns all complete frames now
// available, in order. The returned frames own their data; p may be reused by
// the caller after Write returns.
func (s *ByteStream) Write(p []byte) []AudioFrame {
	s.buf = append(s.buf, p...)

	var frames []AudioFrame
	for len(s.buf) >= s.frameBytes {
		data := make([]byte, s.frameBytes)
		copy(data, s.buf[:s.frameBytes])
		s.buf = s.buf[s.frameBytes:]
		frames = append(frames, AudioFrame{
			Data:       data,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
		})
	}
	return frames
}

// Flush returns the buffered remainder as a final zero-padded frame, or nil
// if no bytes are pending. The stream is reset afterwards.
func (s *ByteStream) Flush() []AudioFrame {
	if len(s.buf) == 0 {
		return nil
	}
	data := make([]byte, s.frameBytes)
	copy(data, s.buf)
	s.buf = s.buf[:0]
	return []AudioFrame{{
		Data:       data,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
	}}
}
