// Package breaker implements the per-host three-state Circuit Breaker
// (spec.md §4.4): CLOSED/OPEN/HALF_OPEN with failure counting, timed
// recovery, and bounded half-open probe admission. Grounded on the
// teacher's engine/internal/ratelimit/limiter.go domainState transitions,
// split into its own independent per-host map per Design Notes §9 ("do
// not couple via back-pointers" — the rate limiter no longer drives this).
package breaker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/models"
)

const shardCount = 64

type Config struct {
	FailureThreshold int           // breaker_threshold, default 12
	RecoveryTimeout  time.Duration // breaker_recovery_ms, default 30s
	HalfOpenMax      int           // breaker_half_open_max, default 3
}

func DefaultConfig() Config {
	return Config{FailureThreshold: 12, RecoveryTimeout: 30 * time.Second, HalfOpenMax: 3}
}

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Clock abstracts time for deterministic recovery-timing tests.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type hostState struct {
	mu                 sync.Mutex
	state              State
	consecutiveFails   int
	openedAt           time.Time
	halfOpenInFlight   int
	halfOpenSuccesses  int
	halfOpenAttempts   int
}

type shard struct {
	mu    sync.Mutex
	hosts map[string]*hostState
}

// Breaker tracks CLOSED/OPEN/HALF_OPEN state per host, independent of the
// gate's and rate limiter's own per-host maps.
type Breaker struct {
	cfg    Config
	clock  Clock
	shards [shardCount]*shard
}

func New(cfg Config) *Breaker { return NewWithClock(cfg, realClock{}) }

func NewWithClock(cfg Config, clock Clock) *Breaker {
	b := &Breaker{cfg: cfg, clock: clock}
	for i := range b.shards {
		b.shards[i] = &shard{hosts: make(map[string]*hostState)}
	}
	return b
}

func (b *Breaker) shardFor(host string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return b.shards[h.Sum32()%shardCount]
}

func (b *Breaker) stateFor(host string) *hostState {
	sh := b.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.hosts[host]
	if !ok {
		st = &hostState{state: Closed}
		sh.hosts[host] = st
	}
	return st
}

// Allow decides whether a request for host may proceed. On success it
// returns a reporter closure the caller invokes exactly once with the
// outcome; the orchestrator never has to remember which breaker call
// corresponds to which fetch outcome. On rejection it returns
// ErrCircuitOpen and a nil reporter.
func (b *Breaker) Allow(host string) (report func(success bool), err error) {
	st := b.stateFor(host)
	st.mu.Lock()

	switch st.state {
	case Open:
		if b.clock.Now().Sub(st.openedAt) >= b.cfg.RecoveryTimeout {
			st.state = HalfOpen
			st.halfOpenInFlight = 0
			st.halfOpenSuccesses = 0
			st.halfOpenAttempts = 0
		} else {
			st.mu.Unlock()
			return nil, models.NewFabricError(host, "breaker.allow", models.ErrCircuitOpen)
		}
		fallthrough
	case HalfOpen:
		if st.halfOpenInFlight >= b.cfg.HalfOpenMax {
			st.mu.Unlock()
			return nil, models.NewFabricError(host, "breaker.allow", models.ErrCircuitOpen)
		}
		st.halfOpenInFlight++
		st.mu.Unlock()
		return func(success bool) { b.reportHalfOpen(st, success) }, nil
	default: // Closed
		st.mu.Unlock()
		return func(success bool) { b.reportClosed(st, success) }, nil
	}
}

func (b *Breaker) reportClosed(st *hostState, success bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != Closed {
		// state moved on (e.g. another goroutine tripped it); nothing to do.
		return
	}
	if success {
		st.consecutiveFails = 0
		return
	}
	st.consecutiveFails++
	if st.consecutiveFails >= b.cfg.FailureThreshold {
		st.state = Open
		st.openedAt = b.clock.Now()
	}
}

func (b *Breaker) reportHalfOpen(st *hostState, success bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != HalfOpen {
		return
	}
	st.halfOpenInFlight--
	st.halfOpenAttempts++
	if success {
		st.halfOpenSuccesses++
	} else {
		// Any failure observed while half-open reopens immediately, per
		// spec.md §4.4 ("The first observed outcome drives the decision").
		st.state = Open
		st.openedAt = b.clock.Now()
		return
	}
	needed := (b.cfg.HalfOpenMax + 1) / 2 // ceil(half_open_max/2)
	if st.halfOpenSuccesses >= needed {
		st.state = Closed
		st.consecutiveFails = 0
	}
}

// State returns the current state for host, for observability/tests.
func (b *Breaker) State(host string) State {
	st := b.stateFor(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// WaitForHalfOpen blocks until host transitions out of OPEN or ctx is
// done; used by tests that assert on recovery timing (S4).
func (b *Breaker) WaitForHalfOpen(ctx context.Context, host string) error {
	for {
		if b.State(host) != Open {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
