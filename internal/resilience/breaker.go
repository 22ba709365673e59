// Package resilience provides reliability patterns for upstream calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker protects the upstream weather API from hammering while it is
// down. After maxFailures consecutive failures the circuit opens for
// cooldown; the first call after the cooldown probes the upstream, and a
// probe failure re-opens the circuit immediately.
type Breaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration

	failures int
	openedAt time.Time // zero while closed
	probing  bool

	now func() time.Time // for testing
}

// New creates a breaker that opens after maxFailures consecutive failures
// and cools down for the given duration before probing.
func New(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open. While open and cooled down, a
// single caller is let through as a probe.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return true
	}
	if b.probing {
		return false
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.probing = true
		return true
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.openedAt = time.Time{}
		b.probing = false
		return
	}

	b.failures++
	if b.probing || b.failures >= b.maxFailures {
		b.openedAt = b.now()
	}
	b.probing = false
}
