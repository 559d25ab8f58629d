package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values take the defaults noted per field.
type BreakerConfig struct {
	// Target labels metrics and logs, e.g. "inventory". Default "default".
	Target string
	// MinRequests observed in a window before the ratio is evaluated. Default 1.
	MinRequests int
	// FailureRatio at or above which the breaker opens. Default 0.5.
	FailureRatio float64
	// OpenFor is the cool-off before probing again. Default 30s.
	OpenFor time.Duration
	// Window bounds how long closed-state counts are kept. Default 1m.
	Window time.Duration
	// HalfOpenProbes is how many requests may probe at once, and how many
	// must succeed, before the breaker closes. Default 1.
	HalfOpenProbes int
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Counts is a snapshot of the outcomes in the current window.
type Counts struct {
	Successes int
	Failures  int
}

// Breaker is a failure-ratio circuit breaker guarding one upstream.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	counts      Counts
	windowStart time.Time
	openedAt    time.Time
	probing     int
}

// NewBreaker returns a closed breaker for cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	cfg.FailureRatio = min(cfg.FailureRatio, 1)
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, state: Closed, windowStart: cfg.Now()}
	b.recordState()
	return b
}

// Allow reports whether a request may go upstream. Once the cool-off has
// elapsed an open breaker turns half-open and admits up to HalfOpenProbes
// requests; every admitted request must be followed by Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.transition(ctx, HalfOpen, now)
		fallthrough
	case HalfOpen:
		if b.probing >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probing++
		return true
	default:
		if now.Sub(b.windowStart) >= b.cfg.Window {
			b.counts = Counts{}
			b.windowStart = now
		}
		return true
	}
}

// Report records the outcome of a request admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = max(b.probing-1, 0)
		if !success {
			b.transition(ctx, Open, now)
			return
		}
		b.counts.Successes++
		if b.counts.Successes >= b.cfg.HalfOpenProbes {
			b.transition(ctx, Closed, now)
		}
		return
	}

	if success {
		b.counts.Successes++
	} else {
		b.counts.Failures++
	}
	total := b.counts.Successes + b.counts.Failures
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.counts.Failures)/float64(total) >= b.cfg.FailureRatio {
		b.transition(ctx, Open, now)
	}
}

// State returns the current breaker state without transitioning it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StateName is State().String(), for health reporting.
func (b *Breaker) StateName() string { return b.State().String() }

// Target returns the label of the upstream guarded by b.
func (b *Breaker) Target() string { return b.cfg.Target }

// Counts returns the outcomes recorded since the last reset.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Breaker) transition(ctx context.Context, next State, now time.Time) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.counts = Counts{}
	b.probing = 0
	b.windowStart = now
	if next == Open {
		b.openedAt = now
	}
	b.recordState()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Target, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}
	evt := b.logger(ctx).Info()
	if next == Open {
		evt = b.logger(ctx).Warn()
	}
	evt = evt.Str("target", b.cfg.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordState() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.cfg.Target).Set(float64(b.state))
}

// logger prefers the request logger so transitions carry the request id.
func (b *Breaker) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	return &nopLogger
}
