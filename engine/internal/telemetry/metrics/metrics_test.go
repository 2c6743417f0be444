package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrometheusProviderRegistersMetrics(t *testing.T) {
	p := NewPrometheusProvider()
	counter := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "sf", Name: "requests_total", Help: "total"}})
	counter.Inc(1)
	counter.Inc(2)

	families, err := p.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNoopProviderDiscardsSafely(t *testing.T) {
	p := NewNoopProvider()
	p.NewCounter(CounterOpts{}).Inc(1)
	p.NewGauge(GaugeOpts{}).Set(1)
	p.NewHistogram(HistogramOpts{}).Observe(1)
	require.Nil(t, p.Registry())
}
