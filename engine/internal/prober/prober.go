// Package prober implements the URL Prober (spec.md §4.6): races the four
// {http,https}x{www,apex} variants of an input URL and returns the first
// exploitable response as canonical. Grounded on the teacher's
// goroutine+channel fan-out idiom (seen throughout
// engine/internal/pipeline's worker pools), adapted into a first-result-
// wins race instead of a worker queue.
package prober

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/fetcher"
	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/models"
)

// Fetcher is the subset of fetcher.Fetcher the prober depends on, so tests
// can substitute a fake.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, proxy *models.Proxy, strategy fetcher.Strategy, deadline time.Duration, probeMode bool) models.FetchOutcome
}

type Prober struct {
	fetcher Fetcher
}

func New(f Fetcher) *Prober { return &Prober{fetcher: f} }

// Result is returned on success and on failure; when every variant fails,
// only Headers is set (from the most severe failed attempt, if any).
type Result struct {
	CanonicalURL string
	Profile      models.SiteProfile
	Headers      http.Header
}

// Probe emits up to four fetches in parallel and returns the first that
// produces ok; on total failure it returns the most-severe reason per the
// preference order blocked > server_error > ssl > timeout > unknown.
func (p *Prober) Probe(ctx context.Context, rawURL string, proxy *models.Proxy, deadline time.Duration) (Result, taxonomy.Reason, error) {
	variants, err := buildVariants(rawURL)
	if err != nil {
		return Result{}, taxonomy.ProbeUnknown, err
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	raceCtx, cancelRace := context.WithCancel(cctx)
	defer cancelRace()

	type attempt struct {
		url     string
		outcome models.FetchOutcome
	}
	results := make(chan attempt, len(variants))

	var wg sync.WaitGroup
	for _, v := range variants {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			outcome := p.fetcher.Fetch(raceCtx, u, proxy, chooseProbeStrategy(), deadline, true)
			select {
			case results <- attempt{url: u, outcome: outcome}:
			case <-raceCtx.Done():
			}
		}(v)
	}
	go func() { wg.Wait(); close(results) }()

	var failReasons []taxonomy.Reason
	failHeaders := make(map[taxonomy.Reason]http.Header)
	for a := range results {
		if a.outcome.OK() {
			cancelRace()
			return Result{
				CanonicalURL: a.url,
				Headers:      a.outcome.Headers,
				Profile: models.SiteProfile{
					Reachable:    true,
					CanonicalURL: a.url,
					CachedHTML:   a.outcome.Body,
					LatencyMS:    int(a.outcome.ElapsedMS),
				},
			}, "", nil
		}
		reason := a.outcome.Reason
		switch {
		case reason == taxonomy.ProxyHTTP403:
			reason = taxonomy.ProbeBlocked
		case reason == taxonomy.ProxyHTTP5xx:
			reason = taxonomy.ProbeServerError
		case reason == taxonomy.ProxyTimeout:
			reason = taxonomy.ProbeTimeout
		case !reason.IsProbe():
			reason = taxonomy.ProbeUnknown
		}
		failReasons = append(failReasons, reason)
		if a.outcome.Headers != nil {
			failHeaders[reason] = a.outcome.Headers
		}
	}

	worst := taxonomy.MostSevereProbe(failReasons)
	// Even on total failure, the blocking response's own headers (e.g.
	// cf-ray on a 403) are worth surfacing: the orchestrator's strategy
	// selector can still classify protection from them and retry with a
	// stronger strategy instead of giving up at the first probe attempt.
	return Result{Headers: failHeaders[worst]}, worst, nil
}

func chooseProbeStrategy() fetcher.Strategy { return fetcher.Standard }

// buildVariants returns the four {http,https}x{www,apex} permutations of
// rawURL's host, preserving its path/query.
func buildVariants(rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()
	apex := strings.TrimPrefix(host, "www.")
	www := apex
	if !strings.HasPrefix(host, "www.") {
		www = "www." + apex
	} else {
		www = host
	}

	variants := make([]string, 0, 4)
	for _, scheme := range []string{"https", "http"} {
		for _, h := range []string{www, apex} {
			vu := *u
			vu.Scheme = scheme
			vu.Host = h
			if u.Port() != "" {
				vu.Host = h + ":" + u.Port()
			}
			variants = append(variants, vu.String())
		}
	}
	return dedupe(variants), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
