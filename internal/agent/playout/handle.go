package playout

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle represents one in-flight agent utterance being played to the room.
//
// A Handle is created by [Playout.Play] and becomes done when playback ends,
// either naturally (audio stream exhausted) or through [Handle.Interrupt].
// The Playout controller guarantees at most one live handle at a time; the
// handle itself only tracks its own lifecycle.
type Handle struct {
	itemID       string
	contentIndex int

	playedSamples atomic.Int64
	interrupted   atomic.Bool

	// ctx is cancelled by Interrupt; the playout task and the transcript
	// forwarder both derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

func newHandle(itemID string, contentIndex int) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		itemID:       itemID,
		contentIndex: contentIndex,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// ItemID returns the conversation item this utterance belongs to.
func (h *Handle) ItemID() string { return h.itemID }

// ContentIndex returns the content part index within the item.
func (h *Handle) ContentIndex() int { return h.contentIndex }

// PlayedSamples returns the cumulative number of audio samples (per channel)
// written to the room so far. Used to compute the truncation point on
// barge-in.
func (h *Handle) PlayedSamples() int64 {
	return h.playedSamples.Load()
}

// Interrupt stops audio emission for this utterance. It is idempotent: the
// second and later calls are no-ops. The handle becomes done shortly after
// (once the playout task observes the cancellation); the stopped callback
// fires with interrupted=true.
func (h *Handle) Interrupt() {
	h.interrupted.Store(true)
	h.cancel()
}

// Interrupted reports whether Interrupt was called.
func (h *Handle) Interrupted() bool {
	return h.interrupted.Load()
}

// Done reports whether playback has fully ended. Non-blocking.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// WaitDone returns a channel closed when playback has fully ended.
func (h *Handle) WaitDone() <-chan struct{} {
	return h.done
}

// markDone closes the done channel exactly once and releases the context.
func (h *Handle) markDone() {
	h.doneOnce.Do(func() {
		h.cancel()
		close(h.done)
	})
}
