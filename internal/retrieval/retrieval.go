// Package retrieval implements optional context augmentation for agent
// utterances: an utterance's opening text is embedded, similar transcript
// moments are fetched from a vector index, and the resulting context string is
// spliced ahead of the utterance's transcript stream.
//
// Every failure in this package degrades to an empty context. Retrieval is an
// auxiliary path and must never abort or delay-fail the audio/transcript turn.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/overlapai/voicelink/internal/observe"
	"github.com/overlapai/voicelink/internal/resilience"
)

// DefaultTopK is the number of nearest neighbours fetched per retrieval.
const DefaultTopK = 5

// Match is one nearest-neighbour hit from an [Index].
type Match struct {
	// Text is the stored transcript moment.
	Text string

	// Timestamp is when the moment was recorded.
	Timestamp time.Time

	// Score is the similarity to the query, higher is more similar.
	Score float64
}

// Embedder maps text to an embedding vector.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension this embedder produces.
	Dimensions() int
}

// Index performs nearest-neighbour lookup over stored transcript moments.
type Index interface {
	// Query returns up to topK matches closest to the embedding, most
	// similar first.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
}

// Retriever composes an [Embedder] and an [Index] into a context string.
type Retriever struct {
	embedder Embedder
	index    Index
	topK     int
	log      *slog.Logger
	metrics  *observe.Metrics
	breaker  *resilience.Breaker
}

// RetrieverOption configures a [Retriever].
type RetrieverOption func(*Retriever)

// WithTopK sets the number of neighbours fetched. The default is 5.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) { r.topK = k }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) RetrieverOption {
	return func(r *Retriever) { r.log = log }
}

// WithMetrics sets the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RetrieverOption {
	return func(r *Retriever) { r.metrics = m }
}

// NewRetriever creates a Retriever over the given embedder and index.
func NewRetriever(e Embedder, idx Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: e,
		index:    idx,
		topK:     DefaultTopK,
		log:      slog.Default(),
		breaker:  resilience.NewBreaker("retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Context returns a newline-joined context string for query, one line per
// match. Any embedding or index failure returns the empty string. A circuit
// breaker skips the lookup entirely while the backend is known to be failing.
func (r *Retriever) Context(ctx context.Context, query string) string {
	ctx, span := observe.StartSpan(ctx, "retrieval.lookup")
	defer span.End()
	start := time.Now()

	var matches []Match
	err := r.breaker.Do(func() error {
		embedding, err := r.embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("retrieval: embed query: %w", err)
		}
		matches, err = r.index.Query(ctx, embedding, r.topK)
		if err != nil {
			return fmt.Errorf("retrieval: query index: %w", err)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrOpen) {
		r.log.Debug("retrieval: skipped, breaker open")
		return ""
	}
	r.metrics.RecordRetrieval(ctx, time.Since(start).Seconds(), err)
	if err != nil {
		r.log.Warn("retrieval: lookup failed", "error", err)
		return ""
	}

	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("Timestamp: %s, Score: %.4f, Text: %s",
			m.Timestamp.Format(time.RFC3339), m.Score, m.Text)
	}
	return strings.Join(lines, "\n")
}
