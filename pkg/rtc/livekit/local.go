package livekit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	media "github.com/livekit/media-sdk"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
)

// Compile-time interface assertions.
var (
	_ rtc.LocalParticipant = (*localParticipant)(nil)
	_ rtc.LocalAudioTrack  = (*localAudioTrack)(nil)
)

// localParticipant adapts the SDK's local participant to [rtc.LocalParticipant].
type localParticipant struct {
	room *Room
}

func (p *localParticipant) lk() *lksdk.LocalParticipant {
	p.room.mu.Lock()
	defer p.room.mu.Unlock()
	if p.room.lkroom == nil {
		return nil
	}
	return p.room.lkroom.LocalParticipant
}

func (p *localParticipant) Identity() string {
	lp := p.lk()
	if lp == nil {
		return ""
	}
	return lp.Identity()
}

// PublishAudioTrack publishes a PCM local track. The SDK track encodes to
// Opus and resamples to 48 kHz internally, so frames are written in the
// caller's format as-is.
func (p *localParticipant) PublishAudioTrack(ctx context.Context, name string, format audio.Format, source rtc.TrackSource) (rtc.LocalAudioTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lp := p.lk()
	if lp == nil {
		return nil, fmt.Errorf("livekit: publish audio track: not connected")
	}

	track, err := lkmedia.NewPCMLocalTrack(format.SampleRate, format.Channels, nil)
	if err != nil {
		return nil, fmt.Errorf("livekit: create local track %q: %w", name, err)
	}

	pub, err := lp.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: toProtoSource(source),
	})
	if err != nil {
		track.Close()
		return nil, fmt.Errorf("livekit: publish track %q: %w", name, err)
	}

	p.room.log.Info("livekit: audio track published",
		"name", name,
		"sid", pub.SID(),
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
	)
	return &localAudioTrack{room: p.room, track: track, pub: pub}, nil
}

func (p *localParticipant) SetAttributes(ctx context.Context, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lp := p.lk()
	if lp == nil {
		return fmt.Errorf("livekit: set attributes: not connected")
	}
	lp.SetAttributes(attrs)
	return nil
}

// transcriptPayload is the wire shape of a forwarded transcript segment,
// published as a reliable data packet on the "transcription" topic.
type transcriptPayload struct {
	ID          string `json:"id"`
	Participant string `json:"participant"`
	TrackID     string `json:"track_id,omitempty"`
	Text        string `json:"text"`
	Final       bool   `json:"final"`
	Language    string `json:"language,omitempty"`
}

func (p *localParticipant) PublishTranscription(ctx context.Context, seg rtc.TranscriptSegment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lp := p.lk()
	if lp == nil {
		return fmt.Errorf("livekit: publish transcription: not connected")
	}

	data, err := json.Marshal(transcriptPayload{
		ID:          seg.ID,
		Participant: seg.ParticipantIdentity,
		TrackID:     seg.TrackID,
		Text:        seg.Text,
		Final:       seg.Final,
		Language:    seg.Language,
	})
	if err != nil {
		return fmt.Errorf("livekit: encode transcription: %w", err)
	}

	err = lp.PublishDataPacket(
		lksdk.UserData(data),
		lksdk.WithDataPublishReliable(true),
		lksdk.WithDataPublishTopic("transcription"),
	)
	if err != nil {
		return fmt.Errorf("livekit: publish transcription: %w", err)
	}
	return nil
}

// localAudioTrack adapts an SDK PCM local track to [rtc.LocalAudioTrack].
// Writes are paced to real time so the caller's frame count tracks what
// listeners actually hear; without pacing the SDK queue would absorb an
// entire utterance instantly.
type localAudioTrack struct {
	room  *Room
	track *lkmedia.PCMLocalTrack
	pub   *lksdk.LocalTrackPublication

	mu        sync.Mutex
	nextWrite time.Time
	closed    bool
}

func (t *localAudioTrack) ID() string {
	return t.pub.SID()
}

func (t *localAudioTrack) WriteFrame(ctx context.Context, f audio.AudioFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("livekit: write frame: track closed")
	}
	if err := t.track.WriteSample(bytesToPCM16(f.Data)); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("livekit: write frame: %w", err)
	}

	now := time.Now()
	if t.nextWrite.Before(now) {
		t.nextWrite = now
	}
	t.nextWrite = t.nextWrite.Add(f.Duration())
	wait := time.Until(t.nextWrite)
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForSubscription blocks until at least one remote participant is in the
// room, or ctx is cancelled. The SDK does not surface per-subscriber state
// for local tracks, so remote presence is used as the readiness signal.
func (t *localAudioTrack) WaitForSubscription(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(t.room.RemoteParticipants()) > 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *localAudioTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	t.track.ClearQueue()
	t.track.Close()

	if lp := t.room.local.lk(); lp != nil {
		if err := lp.UnpublishTrack(t.pub.SID()); err != nil {
			return fmt.Errorf("livekit: unpublish track %s: %w", t.pub.SID(), err)
		}
	}
	return nil
}

// bytesToPCM16 converts raw little-endian int16 bytes to a PCM16 sample.
func bytesToPCM16(data []byte) media.PCM16Sample {
	samples := make(media.PCM16Sample, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
