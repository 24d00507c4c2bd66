package livekit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
)

// Compile-time interface assertion.
var _ rtc.RemoteTrack = (*remoteTrack)(nil)

const streamBuffer = 64

// readDeadline bounds each RTP read so the stream goroutine can observe
// context cancellation even when the track goes silent.
const readDeadline = time.Second

// remoteTrack adapts a subscribed WebRTC audio track to [rtc.RemoteTrack].
// RTP payloads are Opus at 48 kHz; Stream decodes and converts them to the
// requested PCM format.
type remoteTrack struct {
	sid string
	tr  *webrtc.TrackRemote
	log *slog.Logger
}

func (t *remoteTrack) ID() string {
	return t.sid
}

// Stream opens an independent frame reader. The returned channel is closed
// when ctx is cancelled or the track ends.
func (t *remoteTrack) Stream(ctx context.Context, format audio.Format) <-chan audio.AudioFrame {
	out := make(chan audio.AudioFrame, streamBuffer)
	go t.readLoop(ctx, format, out)
	return out
}

func (t *remoteTrack) readLoop(ctx context.Context, format audio.Format, out chan<- audio.AudioFrame) {
	defer close(out)

	channels := int(t.tr.Codec().Channels)
	if channels < 1 {
		channels = 1
	}
	dec, err := newOpusDecoder(channels)
	if err != nil {
		t.log.Error("livekit: track stream setup failed", "sid", t.sid, "err", err)
		return
	}

	var elapsed time.Duration
	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.tr.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		pkt, _, err := t.tr.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("livekit: rtp read error", "sid", t.sid, "err", err)
			continue
		}
		pcm := t.decodePacket(dec, pkt, format)
		if len(pcm) == 0 {
			continue
		}

		frame := audio.AudioFrame{
			Data:       pcm,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()

		select {
		case out <- frame:
		case <-ctx.Done():
			return
		default:
			// Consumer is behind; drop the frame rather than stall RTP reads.
		}
	}
}

// decodePacket converts one RTP packet's Opus payload to PCM in the requested
// format. Returns nil for empty packets and decode failures.
func (t *remoteTrack) decodePacket(dec *opusDecoder, pkt *rtp.Packet, format audio.Format) []byte {
	if pkt == nil || len(pkt.Payload) == 0 {
		return nil
	}
	pcm, err := dec.decode(pkt.Payload)
	if err != nil {
		t.log.Warn("livekit: opus decode error", "sid", t.sid, "err", err)
		return nil
	}
	if dec.channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	pcm = audio.ResampleMono16(pcm, opusSampleRate, format.SampleRate)
	if format.Channels == 2 {
		pcm = audio.MonoToStereo(pcm)
	}
	return pcm
}
