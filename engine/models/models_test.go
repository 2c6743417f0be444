package models

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProxySuccessRate(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:8080")
	p := NewProxy("p1", u)
	require.Equal(t, 0.0, p.SuccessRate())

	p.RecordAllocation()
	p.RecordOutcome(true)
	p.RecordAllocation()
	p.RecordOutcome(false)

	require.Equal(t, int64(2), p.Allocations())
	require.Equal(t, int64(1), p.Successes())
	require.Equal(t, int64(1), p.Failures())
	require.InDelta(t, 0.5, p.SuccessRate(), 1e-9)
}

// TestInvariant4_AllocationsMonotonic backs spec.md §8 invariant 4:
// allocations[p] >= successes[p] + failures[p], always.
func TestInvariant4_AllocationsMonotonic(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:8080")
	p := NewProxy("p1", u)
	for i := 0; i < 5; i++ {
		p.RecordAllocation()
	}
	p.RecordOutcome(true)
	p.RecordOutcome(false)
	require.GreaterOrEqual(t, p.Allocations(), p.Successes()+p.Failures())
}

// TestRoundTrip3_ReportOrderIndependent backs R3: report(ok) then
// report(!ok) on the same proxy yields successes+=1, failures+=1 regardless
// of order.
func TestRoundTrip3_ReportOrderIndependent(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:8080")

	a := NewProxy("a", u)
	a.RecordOutcome(true)
	a.RecordOutcome(false)

	b := NewProxy("b", u)
	b.RecordOutcome(false)
	b.RecordOutcome(true)

	require.Equal(t, a.Successes(), b.Successes())
	require.Equal(t, a.Failures(), b.Failures())
}

func TestFabricErrorUnwrap(t *testing.T) {
	err := NewFabricError("example.com", "gate.acquire", ErrGateTimeout)
	require.ErrorIs(t, err, ErrGateTimeout)
}
