package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/overlapai/voicelink/internal/agent/playout"
	"github.com/overlapai/voicelink/pkg/audio"
)

// defaultQueryLimit bounds how many characters of the utterance's opening text
// are read before the retrieval query is issued. The stream is relayed
// verbatim either way, so the bound only affects query quality.
const defaultQueryLimit = 256

// Compile-time check that *Augmenter can be plugged into the playout
// controller.
var _ playout.TextStreamAugmenter = (*Augmenter)(nil)

// Augmenter wraps an utterance's text stream with retrieved context.
//
// The returned stream first yields the context string (possibly nothing, on
// retrieval failure or empty results), then the source stream's content
// unchanged and in order. At most one retrieval is issued per wrapped stream.
type Augmenter struct {
	retriever  *Retriever
	queryLimit int
	log        *slog.Logger
}

// AugmenterOption configures an [Augmenter].
type AugmenterOption func(*Augmenter)

// WithQueryLimit sets the maximum number of source characters collected for
// the retrieval query. The default is 256.
func WithQueryLimit(n int) AugmenterOption {
	return func(a *Augmenter) { a.queryLimit = n }
}

// WithAugmenterLogger sets the logger. The default is slog.Default.
func WithAugmenterLogger(log *slog.Logger) AugmenterOption {
	return func(a *Augmenter) { a.log = log }
}

// NewAugmenter creates an Augmenter over the given retriever.
func NewAugmenter(r *Retriever, opts ...AugmenterOption) *Augmenter {
	a := &Augmenter{
		retriever:  r,
		queryLimit: defaultQueryLimit,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Augment implements playout.TextStreamAugmenter. It collects a bounded query
// prefix from the source, retrieves context for it, and returns a stream
// yielding the context followed by the source content verbatim.
func (a *Augmenter) Augment(ctx context.Context, textStream <-chan string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		// On cancellation the consumer drains out, not the source; keep the
		// session's producer unblocked until the source closes.
		defer func() {
			if ctx.Err() != nil {
				go audio.Drain(textStream)
			}
		}()

		// Collect the query prefix without forwarding anything yet; the
		// buffered chunks are replayed verbatim below.
		var (
			buffered []string
			query    strings.Builder
		)
		for chunk := range textStream {
			buffered = append(buffered, chunk)
			query.WriteString(chunk)
			if query.Len() >= a.queryLimit {
				break
			}
		}

		if q := strings.TrimSpace(query.String()); q != "" {
			if retrieved := a.retriever.Context(ctx, q); retrieved != "" {
				if !send(ctx, out, retrieved+"\n\n") {
					return
				}
			}
		}

		for _, chunk := range buffered {
			if !send(ctx, out, chunk) {
				return
			}
		}
		for chunk := range textStream {
			if !send(ctx, out, chunk) {
				return
			}
		}
	}()
	return out
}

// send writes v to out unless ctx is cancelled first.
func send(ctx context.Context, out chan<- string, v string) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
