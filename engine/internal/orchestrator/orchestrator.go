// Package orchestrator implements the Scrape Orchestrator (spec.md
// §4.10): the per-company state machine wiring every other component
// together (probe, analyze, select strategies, fetch the main page with
// retry, rescue, extract and prioritise links, batch-fetch subpages,
// aggregate). Grounded on engine/internal/pipeline/pipeline.go's
// multi-stage worker-pool/backoff idiom (backoffDelay, randomizedDelay,
// graceful Stop), adapted from a page-level stage pipeline into a
// per-company state machine: the pipeline's channel-fed worker stages
// become this package's sequential-with-concurrent-subpage-batch flow,
// and its retry/backoff machinery becomes fetchMainPage's per-strategy
// retry loop.
package orchestrator

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/breaker"
	"github.com/99souls/scrapefabric/engine/internal/fetcher"
	"github.com/99souls/scrapefabric/engine/internal/gate"
	"github.com/99souls/scrapefabric/engine/internal/hostkey"
	"github.com/99souls/scrapefabric/engine/internal/linkextract"
	"github.com/99souls/scrapefabric/engine/internal/pagetext"
	"github.com/99souls/scrapefabric/engine/internal/proxypool"
	"github.com/99souls/scrapefabric/engine/internal/ratelimit"
	"github.com/99souls/scrapefabric/engine/internal/strategy"
	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/internal/analyzer"
	"github.com/99souls/scrapefabric/engine/internal/prober"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/events"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/logging"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/tracing"

	"github.com/99souls/scrapefabric/engine/models"
)

// Fetcher is the subset of fetcher.Fetcher the orchestrator depends on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, proxy *models.Proxy, strategy fetcher.Strategy, deadline time.Duration, probeMode bool) models.FetchOutcome
}

// Prober is the subset of prober.Prober the orchestrator depends on.
type Prober interface {
	Probe(ctx context.Context, rawURL string, proxy *models.Proxy, deadline time.Duration) (prober.Result, taxonomy.Reason, error)
}

// Orchestrator drives one company's scrape from seed URL to ScrapeResult.
// It is the only component that touches more than one of the per-host
// maps owned by gate/ratelimit/breaker (Design Notes §9) — they stay
// independent of each other and are coordinated here instead.
type Orchestrator struct {
	cfg     Config
	pool    *proxypool.Pool
	gate    *gate.Gate
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	fetch   Fetcher
	prober  Prober
	bus     events.Bus
	log     logging.Logger
	tracer  tracing.Tracer

	domainStrategy sync.Map // host (string) -> fetcher.Strategy
}

func New(cfg Config, pool *proxypool.Pool, g *gate.Gate, limiter *ratelimit.Limiter, br *breaker.Breaker, f Fetcher, p Prober, bus events.Bus, log logging.Logger, tracer tracing.Tracer) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		pool:    pool,
		gate:    g,
		limiter: limiter,
		breaker: br,
		fetch:   f,
		prober:  p,
		bus:     bus,
		log:     log,
		tracer:  tracer,
	}
}

// Scrape runs the full state machine for one company and returns its
// result. Invariant: exactly one of {len(result.Pages) > 0,
// result.MainPageFailReason != nil} holds on return.
func (o *Orchestrator) Scrape(ctx context.Context, work models.CompanyWork) models.ScrapeResult {
	if work.URL == "" {
		return failResult(taxonomy.ScrapeError)
	}
	parsed, err := url.Parse(work.URL)
	if err != nil || parsed.Host == "" {
		return failResult(taxonomy.ScrapeError)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CompanyDeadline)
	defer cancel()

	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.scrape")
	defer span.End()
	span.SetAttribute("registration_id", work.RegistrationID)

	host := hostkey.FromURL(parsed)
	log := o.log.With("host", host)
	var retries int

	probeResult, probeReason, err := o.runProbe(ctx, work.URL, host)
	if err != nil {
		log.Warn().Err(err).Msg("probe errored")
		o.publish(ctx, events.CategoryOrchestrator, "probe_error", host)
		return failResult(taxonomy.ScrapeError)
	}
	// A probe failure with no response headers at all means nothing on
	// the other end ever answered (dead host, TCP RST): there is no
	// strategy that would fare better, so the orchestrator stops here
	// (S3). A failure that DID carry headers (e.g. a 403 with cf-ray)
	// means a live, blocking host answered; the Selector still gets a
	// chance to pick a stronger strategy and retry (S2).
	if !probeResult.Profile.Reachable && probeResult.Headers == nil {
		log.Info().Str("reason", string(probeReason)).Msg("probe found no reachable variant")
		o.publish(ctx, events.CategoryOrchestrator, "probe_failed", host)
		return failResult(probeReason)
	}

	profile := analyzer.Analyze(probeResult.Headers, probeResult.Profile.CachedHTML)
	profile.LatencyMS = probeResult.Profile.LatencyMS
	canonicalURL := probeResult.CanonicalURL
	if canonicalURL == "" {
		canonicalURL = work.URL
	}
	profile.CanonicalURL = canonicalURL
	profile.Reachable = probeResult.Profile.Reachable

	plan := strategy.Select(profile)
	if plan.EnforceSlow {
		o.gate.ForceSlow(host)
	}

	mainBody := probeResult.Profile.CachedHTML
	mainFailReason := probeReason
	if len(mainBody) == 0 {
		body, attempts, reason, ok := o.fetchMainPage(ctx, host, canonicalURL, plan.Strategies)
		retries += attempts
		if ok {
			mainBody = body
			mainFailReason = ""
		} else {
			mainFailReason = reason
		}
	} else {
		mainFailReason = ""
	}

	mainText := pagetext.Convert(string(mainBody))
	links := linkextract.Extract(parsed, mainBody)

	if mainFailReason == "" && len(mainText) < o.cfg.RescueMinChars && len(links) > 0 {
		rescued, ok := o.rescue(ctx, host, links)
		if ok {
			mainText = rescued
		}
	}

	if mainFailReason != "" && mainText == "" {
		reason := mainFailReason
		return models.ScrapeResult{
			MainPageFailReason: &reason,
			LinksSeen:          len(links),
			Retries:            retries,
		}
	}

	selected := linkextract.Prioritise(links, o.cfg.MaxSubpages)
	subpages, stats := o.fetchSubpages(ctx, host, selected)

	pages := make([]models.PageText, 0, len(subpages)+1)
	pages = append(pages, models.PageText{URL: canonicalURL, Text: mainText, Bytes: len(mainBody)})
	pages = append(pages, subpages...)

	log.Info().Int("pages", len(pages)).Int("subpage_failures", stats.Failed).Msg("company scraped")
	o.publish(ctx, events.CategoryOrchestrator, "company_completed", host)

	return models.ScrapeResult{
		Pages:         pages,
		SubpageStats:  stats,
		LinksSeen:     len(links),
		LinksSelected: len(selected),
		Retries:       retries,
	}
}

// runProbe acquires one proxy and gate/rate-limit slot for the host, then
// races the four URL variants via the Prober.
func (o *Orchestrator) runProbe(ctx context.Context, rawURL, host string) (prober.Result, taxonomy.Reason, error) {
	lease, err := o.gate.Acquire(ctx, host)
	if err != nil {
		return prober.Result{}, taxonomy.InfraConcurrencyTimeout, nil
	}
	defer lease.Release()

	if err := o.limiter.Wait(ctx, host, o.gate.IsSlow(host)); err != nil {
		return prober.Result{}, taxonomy.InfraRatelimitTimeout, nil
	}

	proxy, err := o.pool.Borrow(ctx)
	if err != nil {
		return prober.Result{}, taxonomy.ProxyConnection, nil
	}

	result, reason, err := o.prober.Probe(ctx, rawURL, proxy, o.cfg.ProbeDeadline)
	if err != nil {
		return prober.Result{}, taxonomy.ProbeUnknown, err
	}
	if reason != "" {
		return result, reason, nil
	}
	o.pool.Report(proxy.ID, true, "")
	return result, "", nil
}

// fetchMainPage runs the selector's strategies in order, at most
// MainPageRetries extra attempts per strategy with a fresh proxy. A
// successful strategy is remembered on domainStrategy for this host.
func (o *Orchestrator) fetchMainPage(ctx context.Context, host, rawURL string, strategies []fetcher.Strategy) ([]byte, int, taxonomy.Reason, bool) {
	ordered := o.withRememberedStrategyFirst(host, strategies)
	var retries int
	var lastReason taxonomy.Reason = taxonomy.ScrapeError

	for _, strat := range ordered {
		for attempt := 0; attempt <= o.cfg.MainPageRetries; attempt++ {
			if attempt > 0 {
				retries++
			}
			outcome := o.fetchOnce(ctx, host, rawURL, strat, false)
			if outcome.OK() {
				o.domainStrategy.Store(host, strat)
				return outcome.Body, retries, "", true
			}
			lastReason = outcome.Reason
			if ctx.Err() != nil {
				return nil, retries, lastReason, false
			}
		}
	}
	return nil, retries, lastReason, false
}

func (o *Orchestrator) withRememberedStrategyFirst(host string, strategies []fetcher.Strategy) []fetcher.Strategy {
	v, ok := o.domainStrategy.Load(host)
	if !ok {
		return strategies
	}
	remembered := v.(fetcher.Strategy)
	ordered := make([]fetcher.Strategy, 0, len(strategies)+1)
	ordered = append(ordered, remembered)
	for _, s := range strategies {
		if s != remembered {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// rescue attempts up to RescueMaxAttempts top-priority subpages as
// substitute main-page content when the main page's own text is too thin.
func (o *Orchestrator) rescue(ctx context.Context, host string, links []linkextract.Link) (string, bool) {
	candidates := linkextract.Prioritise(links, o.cfg.RescueMaxAttempts)
	for _, l := range candidates {
		outcome := o.fetchOnce(ctx, host, l.URL, fetcher.Standard, false)
		if !outcome.OK() {
			continue
		}
		text := pagetext.Convert(string(outcome.Body))
		if len(text) >= o.cfg.RescueMinChars {
			return text, true
		}
	}
	return "", false
}

// fetchSubpages issues the prioritised subpage list in mini-batches of
// BatchSize, with no intra/inter-batch delay. Each subpage fetch borrows
// its own proxy through fetchOnce; a batch is not pinned to one proxy.
func (o *Orchestrator) fetchSubpages(ctx context.Context, host string, selected []linkextract.Link) ([]models.PageText, models.SubpageStats) {
	stats := models.SubpageStats{ReasonHistogram: make(map[taxonomy.Reason]int)}
	var pages []models.PageText
	var mu sync.Mutex

	for start := 0; start < len(selected); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(selected) {
			end = len(selected)
		}
		batch := selected[start:end]

		var wg sync.WaitGroup
		for _, link := range batch {
			wg.Add(1)
			go func(l linkextract.Link) {
				defer wg.Done()
				outcome := o.fetchOnce(ctx, host, l.URL, fetcher.Standard, false)

				mu.Lock()
				defer mu.Unlock()
				stats.Attempted++
				if outcome.OK() {
					stats.OK++
					text := pagetext.Convert(string(outcome.Body))
					pages = append(pages, models.PageText{URL: l.URL, Text: text, Bytes: len(outcome.Body)})
					return
				}
				stats.Failed++
				stats.ReasonHistogram[outcome.Reason]++
			}(link)
		}
		wg.Wait()
	}
	return pages, stats
}

// fetchOnce performs the full suspension-point sequence for one attempt:
// Gate.acquire, RateLimiter.wait, Breaker.allow, then the network fetch.
// Cancellation mid-flight releases every resource on the way out. An
// attempt cut short by the company deadline is reported as infra:deadline
// and counts as a failure at both the breaker and the proxy pool; one cut
// short by cancellation is reported as infra:cancelled, records no outcome
// on the pool, and is reported to the breaker as a success, so it never
// adds to the host's failure count.
func (o *Orchestrator) fetchOnce(ctx context.Context, host, rawURL string, strat fetcher.Strategy, probeMode bool) models.FetchOutcome {
	ctx, span := o.tracer.StartSpan(ctx, "fetcher.fetch")
	defer span.End()

	lease, err := o.gate.Acquire(ctx, host)
	if err != nil {
		return models.FetchOutcome{Status: models.FetchFail, Reason: taxonomy.InfraConcurrencyTimeout}
	}
	defer lease.Release()

	slow := o.gate.IsSlow(host)
	if err := o.limiter.Wait(ctx, host, slow); err != nil {
		return models.FetchOutcome{Status: models.FetchFail, Reason: taxonomy.InfraRatelimitTimeout}
	}

	report, err := o.breaker.Allow(host)
	if err != nil {
		return models.FetchOutcome{Status: models.FetchFail, Reason: taxonomy.InfraCircuitOpen}
	}

	proxy, err := o.pool.Borrow(ctx)
	if err != nil {
		report(true) // not a host failure; no attempt was even made
		return models.FetchOutcome{Status: models.FetchFail, Reason: taxonomy.ProxyConnection}
	}

	deadline := o.requestDeadline(slow)
	start := time.Now()
	outcome := o.fetch.Fetch(ctx, rawURL, proxy, strat, deadline, probeMode)
	o.gate.RecordLatency(host, time.Since(start))

	if !outcome.OK() && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome.Reason = taxonomy.InfraDeadline
			report(false)
			o.pool.Report(proxy.ID, false, outcome.Reason)
		} else {
			outcome.Reason = taxonomy.InfraCancelled
			report(true) // cancellation never counts as a host failure: see DESIGN.md Open Question 1
		}
		return outcome
	}

	report(outcome.OK())
	o.pool.Report(proxy.ID, outcome.OK(), outcome.Reason)
	return outcome
}

func (o *Orchestrator) requestDeadline(slow bool) time.Duration {
	if slow {
		return o.cfg.PerRequestSlow
	}
	return o.cfg.PerRequestFast
}

func (o *Orchestrator) publish(ctx context.Context, category, kind, host string) {
	if o.bus == nil {
		return
	}
	_ = o.bus.PublishCtx(ctx, events.Event{
		Category: category,
		Type:     kind,
		Labels:   map[string]string{"host": host},
	})
}

func failResult(reason taxonomy.Reason) models.ScrapeResult {
	r := reason
	return models.ScrapeResult{MainPageFailReason: &r}
}
