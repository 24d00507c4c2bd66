// Package resilience provides a circuit breaker for optional side paths.
//
// The retrieval pipeline wraps its embedding and index calls in a [Breaker]
// so that an unreachable backend fails fast instead of charging a timeout
// against every utterance.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen forwards a limited number of probe calls. Enough successes
	// close the breaker; any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold   = 5
	defaultCooldown    = 30 * time.Second
	defaultProbeBudget = 3
)

// Option configures a [Breaker].
type Option func(*Breaker)

// WithThreshold sets how many consecutive failures trip the breaker.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithProbeBudget sets how many half-open probes must succeed before the
// breaker closes again.
func WithProbeBudget(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.probeBudget = n
		}
	}
}

// WithLogger sets the logger for state transition messages.
func WithLogger(log *slog.Logger) Option {
	return func(b *Breaker) {
		if log != nil {
			b.log = log
		}
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
// Safe for concurrent use.
type Breaker struct {
	name        string
	threshold   int
	cooldown    time.Duration
	probeBudget int
	log         *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeFail bool
}

// NewBreaker creates a closed [Breaker]. name labels log messages.
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		threshold:   defaultThreshold,
		cooldown:    defaultCooldown,
		probeBudget: defaultProbeBudget,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn if the breaker admits the call. While open it returns [ErrOpen]
// without running fn; in half-open only the probe budget's worth of calls
// get through.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

// admit decides whether the next call may proceed, handling the open to
// half-open transition.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFail = false
		b.log.Info("breaker half-open", "name", b.name)
		b.probes++
	case HalfOpen:
		if b.probes >= b.probeBudget {
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	if b.state == HalfOpen {
		b.probeFail = true
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	if b.state == HalfOpen {
		if !b.probeFail && b.probes >= b.probeBudget {
			b.state = Closed
			b.failures = 0
			b.log.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = b.threshold
	b.log.Warn("breaker open", "name", b.name, "failures", b.failures)
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the actual transition happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFail = false
}
