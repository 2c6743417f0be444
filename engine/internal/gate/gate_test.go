package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestInvariant1_PerHostInFlightBounded backs invariant 1: in_flight[h] <=
// per_domain_limit, at any instant.
func TestInvariant1_PerHostInFlightBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerDomainLimit = 2
	cfg.GlobalConcurrency = 100
	g := New(cfg)

	var max int32
	var cur int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			lease, err := g.Acquire(ctx, "example.com")
			if err != nil {
				return
			}
			defer lease.Release()
			n := atomic.AddInt32(&cur, 1)
			for {
				m := atomic.LoadInt32(&max)
				if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, int(max), cfg.PerDomainLimit)
}

// TestBoundary1_GlobalConcurrencyOne backs B1: with global_concurrency=1
// at most one lease is held across all hosts at once, the global bound of
// invariant 2 (sum(in_flight[h]) <= global_concurrency).
func TestBoundary1_GlobalConcurrencyOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalConcurrency = 1
	cfg.PerDomainLimit = 10
	g := New(cfg)

	var active int32
	var maxActive int32
	var wg sync.WaitGroup
	hosts := []string{"a.com", "b.com", "c.com"}
	for _, h := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			lease, err := g.Acquire(ctx, host)
			if err != nil {
				return
			}
			defer lease.Release()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}(h)
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
}

func TestAcquireTimeoutReleasesGlobalSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalConcurrency = 10
	cfg.PerDomainLimit = 1
	g := New(cfg)

	ctx := context.Background()
	lease, err := g.Acquire(ctx, "slow.com")
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(shortCtx, "slow.com")
	require.Error(t, err)

	lease.Release()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	lease2, err := g.Acquire(ctx2, "slow.com")
	require.NoError(t, err)
	lease2.Release()
}

func TestRecordLatencyTagsSlowAndShrinksCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerDomainLimit = 5
	cfg.SlowDomainLimit = 1
	cfg.SlowLatencyMS = 100
	cfg.SlowWindow = 3
	g := New(cfg)

	for i := 0; i < 3; i++ {
		g.RecordLatency("slow.com", 500*time.Millisecond)
	}
	require.True(t, g.IsSlow("slow.com"))
}

// TestRecordLatencyShrinkWhileLeaseOutstandingDoesNotWedge backs the fix
// for a host being tagged slow mid-traffic: an outstanding lease acquired
// before the shrink must still release cleanly against the host's
// (now smaller) cap, and the host must not get stuck permanently full.
func TestRecordLatencyShrinkWhileLeaseOutstandingDoesNotWedge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerDomainLimit = 5
	cfg.SlowDomainLimit = 1
	cfg.SlowLatencyMS = 100
	cfg.SlowWindow = 3
	cfg.GlobalConcurrency = 100
	g := New(cfg)

	lease, err := g.Acquire(context.Background(), "slow.com")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		g.RecordLatency("slow.com", 500*time.Millisecond)
	}
	require.True(t, g.IsSlow("slow.com"))
	require.Equal(t, 1, g.InFlightHost("slow.com"))

	lease.Release()
	require.Equal(t, 0, g.InFlightHost("slow.com"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease2, err := g.Acquire(ctx, "slow.com")
	require.NoError(t, err, "host must not wedge permanently full after a cap shrink")
	lease2.Release()
}

func TestForceSlowTagsHostAndShrinksCapImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerDomainLimit = 5
	cfg.SlowDomainLimit = 2
	g := New(cfg)

	require.False(t, g.IsSlow("ratelimited.com"))
	g.ForceSlow("ratelimited.com")
	require.True(t, g.IsSlow("ratelimited.com"))

	var held []*Lease
	for i := 0; i < cfg.SlowDomainLimit; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		lease, err := g.Acquire(ctx, "ratelimited.com")
		cancel()
		require.NoError(t, err)
		held = append(held, lease)
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := g.Acquire(shortCtx, "ratelimited.com")
	cancel()
	require.Error(t, err, "cap should already be shrunk to SlowDomainLimit")

	for _, l := range held {
		l.Release()
	}
}

func TestForceSlowIsIdempotent(t *testing.T) {
	g := New(DefaultConfig())
	g.ForceSlow("x.com")
	g.ForceSlow("x.com")
	require.True(t, g.IsSlow("x.com"))
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	g := New(DefaultConfig())
	lease, err := g.Acquire(context.Background(), "x.com")
	require.NoError(t, err)
	lease.Release()
	require.NotPanics(t, func() { lease.Release() })
}
