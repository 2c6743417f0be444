// Package gate implements the two-tier Concurrency Gate (spec.md §4.2):
// a global in-flight cap and a per-host cap, both acquired under one
// shared deadline. The global tier is the teacher's buffered-channel
// semaphore idiom from engine/resources.Manager.slots; the per-host tier,
// kept in sharded per-host state, is a mutex-guarded counter with a FIFO
// waiter queue so its cap can change at run time.
package gate

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/models"
)

const shardCount = 64

// Config mirrors the relevant keys of spec.md §6's configuration table.
type Config struct {
	GlobalConcurrency int           // global_concurrency, default 200
	PerDomainLimit    int           // per_domain_limit, default 5
	SlowDomainLimit   int           // slow_domain_limit, default 2
	SlowLatencyMS     int64         // threshold for tagging a host slow, default 8000
	SlowWindow        int           // sample window size for the moving p95
}

func DefaultConfig() Config {
	return Config{
		GlobalConcurrency: 200,
		PerDomainLimit:    5,
		SlowDomainLimit:   2,
		SlowLatencyMS:     8000,
		SlowWindow:        20,
	}
}

// Lease is the opaque handle returned by Acquire. Release is idempotent
// and safe to call multiple times or not at all on every exit path
// (success, failure, cancellation, panic via defer).
type Lease struct {
	once    sync.Once
	release func()
}

func (l *Lease) Release() {
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

type hostState struct {
	mu      sync.Mutex
	cap     int
	inUse   int
	waiters []chan struct{} // FIFO queue of blocked acquirers
	slow    bool
	samples []int64 // recent latencies in ms, ring buffer of size Config.SlowWindow
	idx     int
}

// wakeLocked grants the semaphore to as many queued waiters as cap now
// allows. Caller must hold st.mu.
func (st *hostState) wakeLocked() {
	for st.inUse < st.cap && len(st.waiters) > 0 {
		w := st.waiters[0]
		st.waiters = st.waiters[1:]
		st.inUse++
		close(w)
	}
}

// acquire blocks until a per-host slot is available or ctx is done.
func (st *hostState) acquire(ctx context.Context) (func(), error) {
	st.mu.Lock()
	if st.inUse < st.cap {
		st.inUse++
		st.mu.Unlock()
		return st.release, nil
	}
	wait := make(chan struct{})
	st.waiters = append(st.waiters, wait)
	st.mu.Unlock()

	select {
	case <-wait:
		return st.release, nil
	case <-ctx.Done():
		st.mu.Lock()
		found := false
		for i, w := range st.waiters {
			if w == wait {
				st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
				found = true
				break
			}
		}
		st.mu.Unlock()
		if !found {
			// wakeLocked already granted this waiter the slot (raced with
			// cancellation); give it back since the caller never got it.
			st.release()
		}
		return nil, ctx.Err()
	}
}

// release frees one per-host slot, handing it straight to the next
// waiter if any is queued. Reads st.cap fresh under the lock every time,
// so a cap change from RecordLatency is always reconciled against the
// current occupancy rather than a value captured at acquire time.
func (st *hostState) release() {
	st.mu.Lock()
	if st.inUse > 0 {
		st.inUse--
	}
	st.wakeLocked()
	st.mu.Unlock()
}

type shard struct {
	mu    sync.Mutex
	hosts map[string]*hostState
}

// Gate enforces global and per-host concurrency caps. Its per-host map is
// independent of the rate limiter's and breaker's — Design Notes §9
// forbids back-pointers between them; the orchestrator is the only code
// that consults more than one.
type Gate struct {
	cfg    Config
	global chan struct{}
	shards [shardCount]*shard
}

func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg, global: make(chan struct{}, cfg.GlobalConcurrency)}
	for i := range g.shards {
		g.shards[i] = &shard{hosts: make(map[string]*hostState)}
	}
	return g
}

func (g *Gate) shardFor(host string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return g.shards[h.Sum32()%shardCount]
}

func (g *Gate) stateFor(host string) *hostState {
	sh := g.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.hosts[host]
	if !ok {
		st = &hostState{cap: g.cfg.PerDomainLimit, samples: make([]int64, 0, g.cfg.SlowWindow)}
		sh.hosts[host] = st
	}
	return st
}

// Acquire acquires the global semaphore then the per-host semaphore, both
// under the same deadline. On timeout at either stage, any slot already
// taken is released before returning infra:concurrency_timeout.
func (g *Gate) Acquire(ctx context.Context, host string) (*Lease, error) {
	st := g.stateFor(host)

	select {
	case g.global <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewFabricError(host, "gate.acquire.global", models.ErrGateTimeout)
	}

	release, err := st.acquire(ctx)
	if err != nil {
		<-g.global
		return nil, models.NewFabricError(host, "gate.acquire.host", models.ErrGateTimeout)
	}

	return &Lease{release: func() {
		release()
		<-g.global
	}}, nil
}

// Reason is the taxonomy reason any Acquire timeout should be reported as.
func Reason() taxonomy.Reason { return taxonomy.InfraConcurrencyTimeout }

// InFlightGlobal returns the current global in-flight count.
func (g *Gate) InFlightGlobal() int { return len(g.global) }

// InFlightHost returns the current in-flight count for host.
func (g *Gate) InFlightHost(host string) int {
	st := g.stateFor(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inUse
}

// RecordLatency feeds one fetch latency sample for host's moving p95. When
// the window's p95 crosses SlowLatencyMS the host is tagged slow and its
// cap shrinks to SlowDomainLimit. Existing in-flight holders are
// unaffected — cap is just a number compared against inUse, so a lease
// acquired before the change still releases against the same hostState
// and is reconciled against whatever cap and waiter queue are current at
// release time, never against a stale snapshot.
func (g *Gate) RecordLatency(host string, d time.Duration) {
	st := g.stateFor(host)
	st.mu.Lock()
	defer st.mu.Unlock()

	ms := d.Milliseconds()
	if len(st.samples) < cap(st.samples) {
		st.samples = append(st.samples, ms)
	} else {
		st.samples[st.idx%len(st.samples)] = ms
	}
	st.idx++

	p95 := p95Of(st.samples)
	wasSlow := st.slow
	st.slow = p95 > g.cfg.SlowLatencyMS
	if st.slow != wasSlow {
		newCap := g.cfg.PerDomainLimit
		if st.slow {
			newCap = g.cfg.SlowDomainLimit
		}
		st.cap = newCap
		st.wakeLocked()
	}
}

// IsSlow reports whether host is currently tagged slow.
func (g *Gate) IsSlow(host string) bool {
	st := g.stateFor(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.slow
}

// ForceSlow tags host slow and shrinks its cap to SlowDomainLimit
// regardless of its latency samples, for strategy.Plan.EnforceSlow
// (spec.md §4.8: protection=rate_limit enforces the slow regime outright
// rather than waiting for RecordLatency to observe it). Idempotent; a
// host already tagged slow is left untouched.
func (g *Gate) ForceSlow(host string) {
	st := g.stateFor(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.slow {
		return
	}
	st.slow = true
	st.cap = g.cfg.SlowDomainLimit
	st.wakeLocked()
}

func p95Of(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := (len(sorted)*95 + 99) / 100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
