// Package proxypool implements the Proxy Pool (spec.md §4.1): health
// probing at startup, weighted-random allocation by observed success rate,
// and outcome recording. Weighted selection is grounded on the
// grishkovelli-httptines balancer's capacity/weight computation, adapted
// from its server-efficiency model to the pool's own success-rate counters.
package proxypool

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/logging"
	"github.com/99souls/scrapefabric/engine/models"
)

// Config controls weighting and health-check behaviour.
type Config struct {
	MinSuccessRate   float64       // proxy_min_success_rate, default 0.10
	MinObservations  int64         // proxy_min_observations, default 8
	HealthCheckURL   string        // known-good target probed at startup
	HealthCheckEach  time.Duration // per-proxy health check timeout
}

func DefaultConfig() Config {
	return Config{
		MinSuccessRate:  0.10,
		MinObservations: 8,
		HealthCheckURL:  "https://www.google.com/generate_204",
		HealthCheckEach: 5 * time.Second,
	}
}

// Pool holds and allocates every Proxy. It exclusively owns Proxy identity;
// callers only ever see pointers it handed out via Borrow.
type Pool struct {
	cfg    Config
	log    logging.Logger
	mu     sync.RWMutex
	all    []*models.Proxy
	rng    *rand.Rand
	rngMu  sync.Mutex
}

func New(cfg Config, proxies []*models.Proxy, log logging.Logger) *Pool {
	return &Pool{
		cfg: cfg,
		log: log.With("component", "proxypool"),
		all: proxies,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// HealthCheck probes every proxy in parallel against cfg.HealthCheckURL and
// marks the dead ones discarded. Dead proxies are excluded from selection
// but kept in the pool for observability (proxies_analyzed/proxies_unused).
func (p *Pool) HealthCheck(ctx context.Context) {
	var wg sync.WaitGroup
	for _, proxy := range p.all {
		wg.Add(1)
		go func(pr *models.Proxy) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckEach)
			defer cancel()
			if !p.probeAlive(cctx, pr) {
				pr.SetDiscarded(true)
			}
		}(proxy)
	}
	wg.Wait()
}

func (p *Pool) probeAlive(ctx context.Context, pr *models.Proxy) bool {
	client := &http.Client{Transport: transportFor(pr), Timeout: p.cfg.HealthCheckEach}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.HealthCheckURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500
}

func transportFor(pr *models.Proxy) *http.Transport {
	if pr.Endpoint == nil {
		return &http.Transport{}
	}
	return &http.Transport{Proxy: http.ProxyURL(pr.Endpoint)}
}

// Borrow never blocks on pool emptiness. It returns a weighted-random
// active proxy; if none has enough observations to be weighted it falls
// back to a uniformly random active proxy. Only when every proxy is
// discarded does it return ErrPoolEmpty.
func (p *Pool) Borrow(ctx context.Context) (*models.Proxy, error) {
	p.mu.RLock()
	active := make([]*models.Proxy, 0, len(p.all))
	for _, pr := range p.all {
		if !pr.Discarded() {
			active = append(active, pr)
		}
	}
	p.mu.RUnlock()

	if len(active) == 0 {
		return nil, models.ErrPoolEmpty
	}

	chosen := p.weightedPick(active)
	chosen.RecordAllocation()
	return chosen, nil
}

func (p *Pool) weightedPick(active []*models.Proxy) *models.Proxy {
	weights := make([]float64, len(active))
	var total float64
	for i, pr := range active {
		weights[i] = p.weight(pr)
		total += weights[i]
	}
	if total <= 0 {
		return active[p.intn(len(active))]
	}
	p.rngMu.Lock()
	r := p.rng.Float64() * total
	p.rngMu.Unlock()
	var acc float64
	for i, w := range weights {
		acc += w
		if r <= acc {
			return active[i]
		}
	}
	return active[len(active)-1]
}

func (p *Pool) intn(n int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Intn(n)
}

const epsilon = 0.01

// weight returns the selection weight of a proxy: max(epsilon,
// success_rate) whatever its observation count (so a proxy with no
// observations weighs epsilon), unless it has at least MinObservations and
// falls below the floor, in which case its weight drops to zero (removed
// from selection entirely, per spec.md §4.1).
func (p *Pool) weight(pr *models.Proxy) float64 {
	obs := pr.Observations()
	if obs >= p.cfg.MinObservations && pr.SuccessRate() < p.cfg.MinSuccessRate {
		return 0
	}
	return math.Max(epsilon, pr.SuccessRate())
}

// Report records a proxy outcome. Cancelled attempts must call
// RecordAllocation only (via Borrow) and never Report, so they land in
// allocations-without-outcomes rather than degrading the weighting — see
// DESIGN.md Open Question 1.
func (p *Pool) Report(id string, ok bool, reason taxonomy.Reason) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pr := range p.all {
		if pr.ID == id {
			pr.RecordOutcome(ok)
			return
		}
	}
}

// Snapshot is the pool's observability surface (§4.1): distribution
// buckets, std-dev, percentiles, worst/best-5, plus analyzed/unused counts.
type Snapshot struct {
	ProxiesTotal    int       `json:"proxies_total"`
	ProxiesAnalyzed int       `json:"proxies_analyzed"`
	ProxiesUnused   int       `json:"proxies_unused"`
	Distribution    [6]int    `json:"distribution"` // 0-10,10-30,30-50,50-70,70-90,90-100
	StdDev          float64   `json:"std_dev"`
	P10             float64   `json:"p10"`
	P25             float64   `json:"p25"`
	P50             float64   `json:"p50"`
	P75             float64   `json:"p75"`
	P90             float64   `json:"p90"`
	Worst5          []string  `json:"worst5"`
	Best5           []string  `json:"best5"`
	AggregateSuccessRate float64 `json:"aggregate_success_rate"`
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type rated struct {
		id   string
		rate float64
		obs  int64
	}
	rates := make([]rated, 0, len(p.all))
	unused := 0
	var totalS, totalF int64
	for _, pr := range p.all {
		if pr.Discarded() {
			unused++
			continue
		}
		rates = append(rates, rated{id: pr.ID, rate: pr.SuccessRate(), obs: pr.Observations()})
		totalS += pr.Successes()
		totalF += pr.Failures()
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].rate < rates[j].rate })

	snap := Snapshot{
		ProxiesTotal:    len(p.all),
		ProxiesAnalyzed: len(p.all) - unused,
		ProxiesUnused:   unused,
	}
	if totalS+totalF > 0 {
		snap.AggregateSuccessRate = float64(totalS) / float64(totalS+totalF)
	}
	for _, r := range rates {
		bucket := bucketFor(r.rate)
		snap.Distribution[bucket]++
	}
	values := make([]float64, len(rates))
	for i, r := range rates {
		values[i] = r.rate
	}
	snap.StdDev = stddev(values)
	snap.P10 = percentile(values, 10)
	snap.P25 = percentile(values, 25)
	snap.P50 = percentile(values, 50)
	snap.P75 = percentile(values, 75)
	snap.P90 = percentile(values, 90)

	n := len(rates)
	for i := 0; i < n && i < 5; i++ {
		snap.Worst5 = append(snap.Worst5, rates[i].id)
	}
	for i := n - 1; i >= 0 && i >= n-5; i-- {
		snap.Best5 = append(snap.Best5, rates[i].id)
	}
	return snap
}

func bucketFor(rate float64) int {
	pct := rate * 100
	switch {
	case pct < 10:
		return 0
	case pct < 30:
		return 1
	case pct < 50:
		return 2
	case pct < 70:
		return 3
	case pct < 90:
		return 4
	default:
		return 5
	}
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// percentile assumes values is sorted ascending.
func percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
