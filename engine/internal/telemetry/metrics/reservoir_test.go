package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReservoirPercentilesMonotonic(t *testing.T) {
	r := NewReservoir()
	for i := 1; i <= 1000; i++ {
		r.Observe(float64(i))
	}
	p := r.Percentiles()
	require.LessOrEqual(t, p.P50, p.P90)
	require.LessOrEqual(t, p.P90, p.P99)
	require.LessOrEqual(t, p.Min, p.Avg)
	require.LessOrEqual(t, p.Avg, p.Max)
}

func TestReservoirEmptyIsZeroValue(t *testing.T) {
	r := NewReservoir()
	require.Equal(t, Percentiles{}, r.Percentiles())
}
