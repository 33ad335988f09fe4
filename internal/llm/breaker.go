package llm

import (
	"sync"
	"time"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls circuit breaker transitions.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls that opens the
	// circuit. Values <= 0 default to 5.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a single half-open
	// trial call is admitted. Values <= 0 default to 60s.
	Cooldown time.Duration
}

// CircuitState is a point-in-time view of a Breaker.
type CircuitState struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// Breaker is an in-memory, single-process circuit breaker. It is safe for
// concurrent use.
//
// Closed -> Open after FailureThreshold consecutive failures.
// Open -> HalfOpen once Cooldown has elapsed; exactly one trial call is admitted.
// HalfOpen -> Closed on the trial call's success, HalfOpen -> Open on its failure.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	onChange func(from, to State)
}

// NewBreaker constructs a closed breaker. now may be nil (time.Now is used).
func NewBreaker(cfg BreakerConfig, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, now: now}
}

// Allow reports whether a call may proceed. It returns an Unavailable error
// while the circuit is open, or while a half-open trial call is already in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cfg.Cooldown {
			return apperr.New(apperr.KindUnavailable, "llm circuit open").
				WithDetail("retry_after_seconds", int((b.cfg.Cooldown - elapsed).Seconds())+1)
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return apperr.New(apperr.KindUnavailable, "llm circuit half-open, trial call in flight")
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Failure records a terminal call failure.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.probing = false
	switch b.state {
	case StateHalfOpen:
		b.openedAt = b.now()
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	}
}

// Release gives back a half-open trial call slot without recording an outcome.
// Used when the caller cancelled, which says nothing about upstream health.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := CircuitState{
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
	}
	if b.state != StateClosed {
		st.OpenedAt = b.openedAt
	}
	return st
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
