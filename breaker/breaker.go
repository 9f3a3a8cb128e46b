// Package breaker implements an explicit circuit breaker around calls
// to an external dependency. The state machine, thresholds and
// transitions are first-class values rather than middleware magic, so
// they can be configured and tested directly.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota
	// StateOpen short-circuits calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without touching the dependency while the
// circuit is open. Callers must surface it as an availability error,
// never as an authentication failure.
var ErrOpen = errors.New("breaker: circuit open")

// Config holds circuit breaker tuning.
type Config struct {
	// Name identifies the guarded dependency in logs and hooks.
	Name string
	// FailureThreshold is the number of counted failures within Window
	// that opens the circuit.
	FailureThreshold int
	// Window is the rolling interval over which failures are counted.
	Window time.Duration
	// CoolDown is how long the circuit stays open before allowing
	// trial calls.
	CoolDown time.Duration
	// HalfOpenMaxCalls caps concurrent trial calls while half-open.
	HalfOpenMaxCalls int
	// SuccessesToClose is the number of trial successes that close the
	// circuit again.
	SuccessesToClose int
	// IsFailure decides which errors count against the threshold.
	// Defaults to every non-nil error; callers guarding an identity
	// store must exclude domain outcomes such as "user not found".
	IsFailure func(error) bool
	// OnStateChange is invoked after every transition.
	OnStateChange func(name string, from, to State)

	Logger *slog.Logger
}

// Breaker guards a single dependency. Safe for concurrent use; the
// rolling counters and state flag are shared across callers under one
// lock.
type Breaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failures      []time.Time
	openedAt      time.Time
	halfOpenCalls int
	successes     int

	now func() time.Time
}

// New creates a breaker with the given config, applying defaults for
// unset fields.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.SuccessesToClose <= 0 {
		cfg.SuccessesToClose = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Do runs fn with circuit breaker protection. While the circuit is
// open it returns ErrOpen without invoking fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.halfOpenCalls = 1
		return nil

	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return ErrOpen
		}
		b.halfOpenCalls++
		return nil
	}

	return nil
}

func (b *Breaker) record(err error) {
	failed := err != nil && b.cfg.IsFailure(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessesToClose {
				b.transition(StateClosed)
			} else if b.halfOpenCalls > 0 {
				// Free the slot so the next trial call can proceed.
				b.halfOpenCalls--
			}
		case StateClosed:
			// Successes do not clear the window; only time does.
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
		b.openedAt = b.now()

	case StateClosed:
		now := b.now()
		b.failures = append(b.failures, now)
		b.prune(now)

		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.openedAt = now
		}
	}
}

// prune drops failures that fell out of the rolling window.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	switch to {
	case StateClosed:
		b.failures = b.failures[:0]
		b.successes = 0
		b.halfOpenCalls = 0
	case StateHalfOpen:
		b.successes = 0
		b.halfOpenCalls = 0
	}

	if b.cfg.Logger != nil {
		b.cfg.Logger.Warn("circuit breaker state changed",
			slog.String("name", b.cfg.Name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
