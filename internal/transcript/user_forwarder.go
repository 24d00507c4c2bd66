package transcript

import (
	"context"
	"log/slog"
	"sync"

	"github.com/overlapai/voicelink/pkg/rtc"
)

// UserForwarder publishes the user's speech transcripts to the room.
//
// The backend signals a committed speech segment before its transcription is
// ready, so the forwarder emits an empty interim placeholder on commit and the
// settled text once transcription completes. Segments of one utterance share a
// segment ID so room clients can replace the placeholder in place.
//
// Publishing happens on a dedicated goroutine fed by a bounded queue, so
// callers on the audio/event path never block. When the queue is full the
// segment is dropped and logged.
type UserForwarder struct {
	local    rtc.LocalParticipant
	identity string
	trackID  string

	mu        sync.Mutex
	currentID string
	closed    bool

	queue chan rtc.TranscriptSegment
	done  chan struct{}
	once  sync.Once
}

// NewUserForwarder creates a forwarder attributing segments to the remote
// participant identified by identity, speaking on trackID.
func NewUserForwarder(local rtc.LocalParticipant, identity, trackID string) *UserForwarder {
	f := &UserForwarder{
		local:    local,
		identity: identity,
		trackID:  trackID,
		queue:    make(chan rtc.TranscriptSegment, 16),
		done:     make(chan struct{}),
	}
	go f.publishLoop()
	return f
}

// Interim publishes an empty interim placeholder, opening a new segment ID if
// the previous utterance was finalized.
func (f *UserForwarder) Interim() {
	f.mu.Lock()
	if f.currentID == "" {
		f.currentID = nextSegmentID()
	}
	id := f.currentID
	f.mu.Unlock()

	f.enqueue(rtc.TranscriptSegment{
		ID:                  id,
		ParticipantIdentity: f.identity,
		TrackID:             f.trackID,
	})
}

// Final publishes the settled transcript for the current utterance and closes
// its segment ID.
func (f *UserForwarder) Final(text, language string) {
	f.mu.Lock()
	if f.currentID == "" {
		f.currentID = nextSegmentID()
	}
	id := f.currentID
	f.currentID = ""
	f.mu.Unlock()

	f.enqueue(rtc.TranscriptSegment{
		ID:                  id,
		ParticipantIdentity: f.identity,
		TrackID:             f.trackID,
		Text:                text,
		Final:               true,
		Language:            language,
	})
}

// Close stops the publish loop. Segments enqueued before Close are delivered;
// later Interim/Final calls become no-ops, so racing publishers are safe.
func (f *UserForwarder) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.queue)
	})
	<-f.done
}

func (f *UserForwarder) enqueue(seg rtc.TranscriptSegment) {
	// The closed flag and the send share the mutex: Close cannot close the
	// queue between the check and the send.
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- seg:
	default:
		slog.Warn("user transcript queue full, dropping segment",
			"participant", f.identity,
			"final", seg.Final,
		)
	}
}

func (f *UserForwarder) publishLoop() {
	defer close(f.done)
	for seg := range f.queue {
		if err := f.local.PublishTranscription(context.Background(), seg); err != nil {
			slog.Error("forward user transcript",
				"participant", f.identity,
				"segment_id", seg.ID,
				"err", err,
			)
		}
	}
}
