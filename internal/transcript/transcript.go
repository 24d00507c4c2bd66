// Package transcript forwards speech transcripts to the room, one forwarder
// per direction: [UserForwarder] mirrors the user's recognized speech and
// [AgentForwarder] surfaces the agent's outgoing text stream paced to
// approximate the synthesized speech rate.
//
// Both forwarders are pure consumers of the audio pipeline: they never block
// the audio path, and forwarding failures are logged without aborting playout
// or ingest.
package transcript

import (
	"fmt"
	"sync/atomic"

	"github.com/overlapai/voicelink/pkg/tokenize"
)

// DefaultHyphensPerSecond is the assumed natural speech rate used to pace the
// agent-transcript forwarder, in hyphenated word parts per second.
const DefaultHyphensPerSecond = 3.83

// Options configures transcript forwarding for an agent session.
type Options struct {
	// UserTranscription enables forwarding of the user's speech transcripts.
	UserTranscription bool

	// AgentTranscription enables forwarding of the agent's speech transcripts.
	AgentTranscription bool

	// AgentTranscriptionSpeed scales the pacing of forwarded agent transcripts
	// relative to the natural speech rate. 1.0 mimics the speech speed.
	AgentTranscriptionSpeed float64

	// SentenceTokenizer decides when a forwarded agent segment becomes final.
	SentenceTokenizer tokenize.SentenceTokenizer

	// WordTokenizer splits agent text into the words used to simulate interim
	// transcript updates.
	WordTokenizer tokenize.WordTokenizer

	// Hyphenate estimates per-word speech duration for pacing.
	Hyphenate func(string) []string
}

// DefaultOptions returns the baseline forwarding configuration: both
// directions enabled, natural speed, basic tokenizers.
func DefaultOptions() Options {
	return Options{
		UserTranscription:       true,
		AgentTranscription:      true,
		AgentTranscriptionSpeed: 1.0,
		SentenceTokenizer:       &tokenize.BasicSentenceTokenizer{},
		WordTokenizer:           &tokenize.BasicWordTokenizer{},
		Hyphenate:               tokenize.Hyphenate,
	}
}

// withDefaults fills zero-valued fields so partially populated Options from
// config are usable.
func (o Options) withDefaults() Options {
	if o.AgentTranscriptionSpeed <= 0 {
		o.AgentTranscriptionSpeed = 1.0
	}
	if o.SentenceTokenizer == nil {
		o.SentenceTokenizer = &tokenize.BasicSentenceTokenizer{}
	}
	if o.WordTokenizer == nil {
		o.WordTokenizer = &tokenize.BasicWordTokenizer{}
	}
	if o.Hyphenate == nil {
		o.Hyphenate = tokenize.Hyphenate
	}
	return o
}

var segmentCounter atomic.Int64

// nextSegmentID returns a process-unique transcript segment ID.
func nextSegmentID() string {
	return fmt.Sprintf("SG_%d", segmentCounter.Add(1))
}
