package playout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/overlapai/voicelink/pkg/audio"
	"github.com/overlapai/voicelink/pkg/rtc"
)

// TranscriptForwarder paces a text stream into room transcription segments.
// Forward must return when the stream closes or the context is cancelled.
type TranscriptForwarder interface {
	Forward(ctx context.Context, textStream <-chan string)
}

// TextStreamAugmenter rewrites an utterance's text stream before it is
// forwarded. The returned stream must yield the original stream's content,
// possibly preceded by additional text, and must close when the source
// closes.
type TextStreamAugmenter interface {
	Augment(ctx context.Context, textStream <-chan string) <-chan string
}

// Playout writes agent utterances to a local audio track, one at a time.
//
// Play hands over from the previous utterance to the new one: if an earlier
// handle is still live it is interrupted and fully wound down before the new
// utterance emits its first frame. Audio and transcript run concurrently per
// utterance; the transcript forwarder is cancelled on interrupt and allowed
// to drain naturally otherwise.
type Playout struct {
	track  rtc.LocalAudioTrack
	format audio.Format
	log    *slog.Logger

	augmenter TextStreamAugmenter

	onStarted func(h *Handle)
	onStopped func(h *Handle, interrupted bool)

	mu      sync.Mutex
	current *Handle
	closed  bool

	wg sync.WaitGroup
}

// Option configures a Playout controller.
type Option func(*Playout)

// WithAugmenter installs a text stream augmenter applied to every utterance's
// transcript stream. The default is the identity.
func WithAugmenter(a TextStreamAugmenter) Option {
	return func(p *Playout) { p.augmenter = a }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Playout) { p.log = log }
}

// OnStarted registers a callback invoked when an utterance emits its first
// audio frame. Must be called before Play.
func (p *Playout) OnStarted(fn func(h *Handle)) { p.onStarted = fn }

// OnStopped registers a callback invoked exactly once per utterance when
// playback ends, with interrupted reporting whether it was cut short.
// Must be called before Play.
func (p *Playout) OnStopped(fn func(h *Handle, interrupted bool)) { p.onStopped = fn }

// New creates a Playout controller writing to track in the given format.
func New(track rtc.LocalAudioTrack, format audio.Format, opts ...Option) *Playout {
	p := &Playout{
		track:  track,
		format: format,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the live handle, or nil when nothing is playing or the
// last utterance already finished.
func (p *Playout) Current() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.Done() {
		return nil
	}
	return p.current
}

// Play starts playing a new utterance and returns its handle.
//
// If a previous utterance is still live it is interrupted first; the new
// utterance does not emit audio until the previous one is fully done. The
// audio stream is consumed chunk by chunk and written to the track; the text
// stream (after optional augmentation) is handed to the forwarder on its own
// goroutine.
func (p *Playout) Play(itemID string, contentIndex int, fwd TranscriptForwarder, textStream <-chan string, audioStream <-chan []byte) *Handle {
	h := newHandle(itemID, contentIndex)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		h.interrupted.Store(true)
		h.markDone()
		return h
	}
	prev := p.current
	p.current = h
	p.wg.Add(1)
	p.mu.Unlock()

	go p.playTask(h, prev, fwd, textStream, audioStream)
	return h
}

// Close interrupts the live utterance and waits for all playout tasks to
// finish.
func (p *Playout) Close() {
	p.mu.Lock()
	p.closed = true
	cur := p.current
	p.mu.Unlock()
	if cur != nil {
		cur.Interrupt()
	}
	p.wg.Wait()
}

func (p *Playout) playTask(h *Handle, prev *Handle, fwd TranscriptForwarder, textStream <-chan string, audioStream <-chan []byte) {
	defer p.wg.Done()
	defer h.markDone()

	// Hand over: the previous utterance must be fully stopped before this
	// one emits a single frame, otherwise two utterances would interleave
	// on the track.
	if prev != nil && !prev.Done() {
		prev.Interrupt()
		<-prev.WaitDone()
	}

	if p.augmenter != nil {
		textStream = p.augmenter.Augment(h.ctx, textStream)
	}

	var fwdWG sync.WaitGroup
	if fwd != nil {
		fwdWG.Add(1)
		go func() {
			defer fwdWG.Done()
			fwd.Forward(h.ctx, textStream)
		}()
	} else {
		// Keep the producer unblocked even when transcription is off.
		fwdWG.Add(1)
		go func() {
			defer fwdWG.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case _, ok := <-textStream:
					if !ok {
						return
					}
				}
			}
		}()
	}

	started := false
	startedAt := time.Now()
	interrupted := p.copyAudio(h, audioStream, &started, &startedAt)

	if interrupted {
		// Cut the transcript at the spoken prefix right away.
		h.cancel()
	}
	fwdWG.Wait()
	if interrupted {
		// The session closes abandoned streams after truncation; drain
		// whatever it still emits so it never blocks.
		go audio.Drain(textStream)
	}

	if started {
		p.log.Debug("playout finished",
			"item_id", h.itemID,
			"interrupted", interrupted,
			"played_samples", h.PlayedSamples(),
			"duration", time.Since(startedAt))
	}
	if p.onStopped != nil {
		p.onStopped(h, interrupted)
	}
}

// copyAudio drains audioStream into the track until the stream closes or the
// handle is interrupted. It reports whether playback was interrupted.
func (p *Playout) copyAudio(h *Handle, audioStream <-chan []byte, started *bool, startedAt *time.Time) bool {
	bytesPerSample := 2 * p.format.Channels
	var elapsed time.Duration
	for {
		select {
		case <-h.ctx.Done():
			// Drop whatever the model still has buffered.
			go audio.Drain(audioStream)
			return true
		case chunk, ok := <-audioStream:
			if !ok {
				return h.Interrupted()
			}
			if len(chunk) == 0 {
				continue
			}
			if !*started {
				*started = true
				*startedAt = time.Now()
				if p.onStarted != nil {
					p.onStarted(h)
				}
			}
			frame := audio.AudioFrame{
				Data:       chunk,
				SampleRate: p.format.SampleRate,
				Channels:   p.format.Channels,
				Timestamp:  elapsed,
			}
			if err := p.track.WriteFrame(h.ctx, frame); err != nil {
				if h.ctx.Err() != nil {
					go audio.Drain(audioStream)
					return true
				}
				p.log.Warn("playout: write frame", "item_id", h.itemID, "error", err)
				continue
			}
			elapsed += frame.Duration()
			h.playedSamples.Add(int64(len(chunk) / bytesPerSample))
		}
	}
}
