package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// TestBoundary2_SingleFailureOpensBreaker backs B2: with
// breaker_threshold=1, a single failure opens the breaker and the next
// acquire for the same host returns infra:circuit_open.
func TestBoundary2_SingleFailureOpensBreaker(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenMax: 3})

	report, err := b.Allow("example.com")
	require.NoError(t, err)
	report(false)

	require.Equal(t, Open, b.State("example.com"))

	_, err = b.Allow("example.com")
	require.Error(t, err)
}

// TestScenarioS4_BreakerTrip backs S4: 12 consecutive failures trip the
// breaker; the 13th call is rejected without issuing network I/O; after
// recovery it enters HALF_OPEN and admits up to HalfOpenMax probes.
func TestScenarioS4_BreakerTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewWithClock(Config{FailureThreshold: 12, RecoveryTimeout: 30 * time.Second, HalfOpenMax: 3}, clock)

	for i := 0; i < 12; i++ {
		report, err := b.Allow("host.com")
		require.NoError(t, err)
		report(false)
	}
	require.Equal(t, Open, b.State("host.com"))

	_, err := b.Allow("host.com")
	require.Error(t, err)

	clock.advance(31 * time.Second)

	admitted := 0
	for i := 0; i < 5; i++ {
		_, err := b.Allow("host.com")
		if err == nil {
			admitted++
		}
	}
	require.Equal(t, 3, admitted)
	require.Equal(t, HalfOpen, b.State("host.com"))
}

func TestHalfOpenMajoritySuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewWithClock(Config{FailureThreshold: 1, RecoveryTimeout: time.Second, HalfOpenMax: 3}, clock)

	report, _ := b.Allow("x.com")
	report(false)
	clock.advance(2 * time.Second)

	var reports []func(bool)
	for i := 0; i < 3; i++ {
		r, err := b.Allow("x.com")
		require.NoError(t, err)
		reports = append(reports, r)
	}
	reports[0](true)
	reports[1](true)
	reports[2](false)

	require.Equal(t, Closed, b.State("x.com"))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewWithClock(Config{FailureThreshold: 1, RecoveryTimeout: time.Second, HalfOpenMax: 3}, clock)

	report, _ := b.Allow("y.com")
	report(false)
	clock.advance(2 * time.Second)

	r, err := b.Allow("y.com")
	require.NoError(t, err)
	r(false)

	require.Equal(t, Open, b.State("y.com"))
}

func TestWaitForHalfOpenRespectsContext(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := NewWithClock(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMax: 1}, clock)
	report, _ := b.Allow("z.com")
	report(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.WaitForHalfOpen(ctx, "z.com")
	require.Error(t, err)
}
