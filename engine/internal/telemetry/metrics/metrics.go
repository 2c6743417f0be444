// Package metrics is the minimal metrics-provider abstraction used
// internally by the fabric's components. Interface shape kept from the
// teacher's engine/internal/telemetry/metrics/metrics.go; backed here by a
// real github.com/prometheus/client_golang registry instead of a bare
// no-op, per SPEC_FULL.md §3 (the teacher's own prom wiring lived in its
// selectMetricsProvider, referenced from engine/engine.go).
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider is the minimal metrics provider contract used internally.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	Health(ctx context.Context) error
	Registry() *prometheus.Registry
}

type Counter interface{ Inc(delta float64, labels ...string) }
type Gauge interface {
	Set(v float64, labels ...string)
	Add(delta float64, labels ...string)
}
type Histogram interface{ Observe(v float64, labels ...string) }

type CommonOpts struct {
	Namespace, Subsystem, Name, Help string
	Labels                           []string
}
type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// --- no-op provider, used when metrics are disabled ------------------------

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}

func NewNoopProvider() Provider                                     { return noopProvider{} }
func (noopProvider) NewCounter(CounterOpts) Counter                  { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge                        { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram            { return noopHistogram{} }
func (noopProvider) Health(context.Context) error                   { return nil }
func (noopProvider) Registry() *prometheus.Registry                 { return nil }
func (noopCounter) Inc(float64, ...string)                          {}
func (noopGauge) Set(float64, ...string)                            {}
func (noopGauge) Add(float64, ...string)                             {}
func (noopHistogram) Observe(float64, ...string)                    {}

// --- prometheus-backed provider ---------------------------------------------

type promProvider struct {
	reg *prometheus.Registry
}

func NewPrometheusProvider() Provider {
	return &promProvider{reg: prometheus.NewRegistry()}
}

func (p *promProvider) Registry() *prometheus.Registry { return p.reg }

func (p *promProvider) Health(context.Context) error { return nil }

func (p *promProvider) NewCounter(opts CounterOpts) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help,
	}, opts.Labels)
	p.reg.MustRegister(vec)
	return promCounter{vec: vec}
}

func (p *promProvider) NewGauge(opts GaugeOpts) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help,
	}, opts.Labels)
	p.reg.MustRegister(vec)
	return promGauge{vec: vec}
}

func (p *promProvider) NewHistogram(opts HistogramOpts) Histogram {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help, Buckets: buckets,
	}, opts.Labels)
	p.reg.MustRegister(vec)
	return promHistogram{vec: vec}
}

type promCounter struct{ vec *prometheus.CounterVec }

func (c promCounter) Inc(delta float64, labels ...string) { c.vec.WithLabelValues(labels...).Add(delta) }

type promGauge struct{ vec *prometheus.GaugeVec }

func (g promGauge) Set(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Set(v) }
func (g promGauge) Add(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Add(v) }

type promHistogram struct{ vec *prometheus.HistogramVec }

func (h promHistogram) Observe(v float64, labels ...string) {
	h.vec.WithLabelValues(labels...).Observe(v)
}
