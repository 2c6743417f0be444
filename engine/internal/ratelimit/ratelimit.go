// Package ratelimit implements the per-host token-bucket Rate Limiter
// (spec.md §4.3). Grounded on the teacher's
// engine/internal/ratelimit/limiter.go sharded domainShard map and
// lazy-refill bucket math, stripped of its fused AIMD/breaker logic: per
// Design Notes §9 the rate limiter keeps its own independent per-host map,
// entirely decoupled from the breaker.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99souls/scrapefabric/engine/models"
)

const shardCount = 64

type Config struct {
	DefaultRPM float64 // rpm_default, default 300
	SlowRPM    float64 // rpm_slow, default 60
	BurstSize  float64 // burst_size, default 60
}

func DefaultConfig() Config {
	return Config{DefaultRPM: 300, SlowRPM: 60, BurstSize: 60}
}

// Clock abstracts time for deterministic tests, mirroring the teacher's
// Clock interface in limiter.go.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	seeded     bool
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter enforces a per-host token bucket. Waiting is bounded by the
// caller's context deadline; acquires that would have to wait past it
// return ErrRateLimitTimeout.
type Limiter struct {
	cfg        Config
	clock      Clock
	shards     [shardCount]*shard
	throttled  atomic.Int64
	nonThrottled atomic.Int64
}

func New(cfg Config) *Limiter { return NewWithClock(cfg, realClock{}) }

func NewWithClock(cfg Config, clock Clock) *Limiter {
	l := &Limiter{cfg: cfg, clock: clock}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

func (l *Limiter) shardFor(host string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return l.shards[h.Sum32()%shardCount]
}

func (l *Limiter) bucketFor(host string) *bucket {
	sh := l.shardFor(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	b, ok := sh.buckets[host]
	if !ok {
		b = &bucket{tokens: l.cfg.BurstSize, lastRefill: l.clock.Now(), seeded: true}
		sh.buckets[host] = b
	}
	return b
}

// Wait blocks (refilling lazily) until a token is available for host, or
// returns ErrRateLimitTimeout if the wait would exceed ctx's deadline.
// slow selects the reduced rpm bucket for hosts the Gate has tagged slow.
func (l *Limiter) Wait(ctx context.Context, host string, slow bool) error {
	rpm := l.cfg.DefaultRPM
	if slow {
		rpm = l.cfg.SlowRPM
	}
	ratePerSec := rpm / 60.0

	b := l.bucketFor(host)
	for {
		b.mu.Lock()
		now := l.clock.Now()
		elapsed := now.Sub(b.lastRefill).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * ratePerSec
			if b.tokens > l.cfg.BurstSize {
				b.tokens = l.cfg.BurstSize
			}
			b.lastRefill = now
		}
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			l.nonThrottled.Add(1)
			return nil
		}
		deficit := 1 - b.tokens
		wait := time.Duration(deficit / ratePerSec * float64(time.Second))
		b.mu.Unlock()

		if deadline, ok := ctx.Deadline(); ok && now.Add(wait).After(deadline) {
			return models.NewFabricError(host, "ratelimit.wait", models.ErrRateLimitTimeout)
		}

		l.throttled.Add(1)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return models.NewFabricError(host, "ratelimit.wait", models.ErrRateLimitTimeout)
		}
	}
}

// Snapshot reports throttled vs non-throttled acquire counts.
type Snapshot struct {
	Throttled    int64 `json:"throttled"`
	NonThrottled int64 `json:"non_throttled"`
}

func (l *Limiter) Snapshot() Snapshot {
	return Snapshot{Throttled: l.throttled.Load(), NonThrottled: l.nonThrottled.Load()}
}
