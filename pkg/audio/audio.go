// Package audio defines the PCM frame types and byte-level helpers shared by
// the voicelink pipeline.
//
// Frames are the atomic unit of audio transport — captured from room tracks,
// re-framed by the [ByteStream], appended to the realtime session's input
// buffer, and played back through the room's output track. All PCM data is
// little-endian int16.
package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 24000 for the realtime session, 48000 for Opus).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int
}

// AudioFrame represents a single frame of audio data flowing through the
// pipeline.
type AudioFrame struct {
	// PCM audio data, little-endian int16, channels interleaved.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Zero when the capture layer does not track timing.
	Timestamp time.Duration
}

// SamplesPerChannel returns the number of samples per channel in the frame.
func (f AudioFrame) SamplesPerChannel() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}

// Duration returns the wall-clock length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel()) * time.Second / time.Duration(f.SampleRate)
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data from a streaming channel
// is not needed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
