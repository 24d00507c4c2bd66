package transcript

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/overlapai/voicelink/pkg/rtc"
)

// AgentForwarder surfaces one agent utterance's text stream as transcript
// segments, paced to approximate the perceived speech rate.
//
// Words are published incrementally as interim updates; a segment is marked
// final once the sentence tokenizer finds a sentence boundary, and the next
// sentence opens a fresh segment. The per-word delay is derived from the
// word's hyphenated part count at [DefaultHyphensPerSecond] scaled by
// Options.AgentTranscriptionSpeed.
//
// Forward is driven by the playout controller on its own goroutine; it never
// backpressures the audio path. One AgentForwarder serves one utterance.
type AgentForwarder struct {
	local    rtc.LocalParticipant
	identity string
	trackID  string
	opts     Options

	segID   string
	spoken  strings.Builder
	perPart time.Duration
}

// NewAgentForwarder creates a forwarder for one agent utterance, attributing
// segments to the local participant's identity on trackID.
func NewAgentForwarder(local rtc.LocalParticipant, trackID string, opts Options) *AgentForwarder {
	opts = opts.withDefaults()
	rate := DefaultHyphensPerSecond * opts.AgentTranscriptionSpeed
	return &AgentForwarder{
		local:    local,
		identity: local.Identity(),
		trackID:  trackID,
		opts:     opts,
		segID:    nextSegmentID(),
		perPart:  time.Duration(float64(time.Second) / rate),
	}
}

// Forward consumes textStream until it closes or ctx is cancelled, publishing
// paced transcript segments. On cancellation the words already surfaced are
// finalized so the room is left with a settled transcript of what was heard.
func (f *AgentForwarder) Forward(ctx context.Context, textStream <-chan string) {
	var buf string

	for {
		select {
		case <-ctx.Done():
			f.finalize()
			return
		case chunk, ok := <-textStream:
			if !ok {
				// Stream exhausted: flush whatever is buffered as the last sentence.
				if strings.TrimSpace(buf) != "" {
					f.paceSentence(ctx, strings.TrimSpace(buf))
				}
				f.finalize()
				return
			}
			buf += chunk

			sentences, rest := f.opts.SentenceTokenizer.Split(buf)
			buf = rest
			for _, sentence := range sentences {
				if !f.paceSentence(ctx, sentence) {
					f.finalize()
					return
				}
			}
		}
	}
}

// paceSentence publishes sentence word by word with speech-rate delays and
// marks the segment final at the end. Returns false if ctx was cancelled.
func (f *AgentForwarder) paceSentence(ctx context.Context, sentence string) bool {
	words := f.opts.WordTokenizer.Tokenize(sentence)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, word := range words {
		if f.spoken.Len() > 0 {
			f.spoken.WriteByte(' ')
		}
		f.spoken.WriteString(word)
		f.publish(f.spoken.String(), false)

		parts := len(f.opts.Hyphenate(word))
		if parts == 0 {
			parts = 1
		}
		timer.Reset(time.Duration(parts) * f.perPart)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	f.publish(f.spoken.String(), true)
	f.spoken.Reset()
	f.segID = nextSegmentID()
	return true
}

// finalize settles the in-flight segment, if any words were surfaced.
func (f *AgentForwarder) finalize() {
	if f.spoken.Len() == 0 {
		return
	}
	f.publish(f.spoken.String(), true)
	f.spoken.Reset()
}

func (f *AgentForwarder) publish(text string, final bool) {
	seg := rtc.TranscriptSegment{
		ID:                  f.segID,
		ParticipantIdentity: f.identity,
		TrackID:             f.trackID,
		Text:                text,
		Final:               final,
	}
	if err := f.local.PublishTranscription(context.Background(), seg); err != nil {
		slog.Error("forward agent transcript",
			"segment_id", seg.ID,
			"final", final,
			"err", err,
		)
	}
}
