// Package breaker guards calls to flaky collaborators (exchange REST,
// Redis) so a dead dependency is skipped instead of hammered every scan.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls rejected until the cool-down elapses
	HalfOpen              // one probe call allowed
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

// Breaker opens after maxFailures consecutive failures and rejects calls
// for coolDown. The first call after coolDown is a probe: success closes
// the breaker, failure reopens it. Context cancellation is not counted as
// a dependency failure.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	// OnStateChange, if set, is called with the lock held on every transition.
	OnStateChange func(name string, from, to State)
}

// New creates a closed breaker. maxFailures < 1 is treated as 1.
func New(name string, maxFailures int, coolDown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{name: name, maxFailures: maxFailures, coolDown: coolDown, now: time.Now}
}

// Name returns the breaker label used in logs and metrics.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.coolDown {
			return ErrCircuitOpen
		}
		b.transition(HalfOpen)
		b.probing = true
	case HalfOpen:
		// a probe is already in flight
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == HalfOpen
	b.probing = false

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		b.failures++
		if wasProbe || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(Open)
		}
		return
	}
	if err != nil {
		// caller gave up; leave the breaker where it was
		return
	}
	b.failures = 0
	if wasProbe {
		b.transition(Closed)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(b.name, from, to)
	}
}
