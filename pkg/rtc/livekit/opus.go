package livekit

import (
	"fmt"

	"layeh.com/gopus"
)

// WebRTC audio arrives as 48 kHz Opus regardless of the capture rate.
const (
	opusSampleRate = 48000
	// opusMaxFrameSize is the largest possible Opus frame: 120 ms at 48 kHz.
	opusMaxFrameSize = 5760
)

// opusDecoder wraps a gopus Opus decoder for a single subscribed track.
// Each track gets its own decoder to maintain decoder state correctly
// across consecutive packets.
type opusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// newOpusDecoder creates an Opus decoder for the given channel count.
func newOpusDecoder(channels int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("livekit: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, channels: channels}, nil
}

// decode decodes an Opus packet into interleaved PCM int16 samples and returns
// the result as a byte slice (little-endian int16 pairs).
func (d *opusDecoder) decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, opusMaxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("livekit: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
