// Package models holds the fabric's core data types: the ones passed
// between the proxy pool, gate, rate limiter, breaker, fetcher, and
// orchestrator. Every type here matches the data model of the scraping
// fabric spec field-for-field; none of it is specific to a single component.
package models

import (
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
)

// Proxy is a single pool entry. Identity never mutates after construction;
// the counter triple is the only mutable state, and it is monotonic for the
// life of the process.
type Proxy struct {
	ID       string
	Endpoint *url.URL

	allocations int64
	successes   int64
	failures    int64
	discarded   atomic.Bool
}

func NewProxy(id string, endpoint *url.URL) *Proxy {
	return &Proxy{ID: id, Endpoint: endpoint}
}

func (p *Proxy) Allocations() int64 { return atomic.LoadInt64(&p.allocations) }
func (p *Proxy) Successes() int64   { return atomic.LoadInt64(&p.successes) }
func (p *Proxy) Failures() int64    { return atomic.LoadInt64(&p.failures) }
func (p *Proxy) Discarded() bool    { return p.discarded.Load() }
func (p *Proxy) SetDiscarded(v bool) { p.discarded.Store(v) }

// RecordAllocation is counted separately from outcomes: many allocations
// never produce an observed outcome (the request is cancelled mid-flight).
func (p *Proxy) RecordAllocation() { atomic.AddInt64(&p.allocations, 1) }

// RecordOutcome records an observed success or failure. Cancelled attempts
// must NOT call this; see infra:cancelled policy in DESIGN.md.
func (p *Proxy) RecordOutcome(ok bool) {
	if ok {
		atomic.AddInt64(&p.successes, 1)
		return
	}
	atomic.AddInt64(&p.failures, 1)
}

func (p *Proxy) SuccessRate() float64 {
	s, f := atomic.LoadInt64(&p.successes), atomic.LoadInt64(&p.failures)
	total := s + f
	if total <= 0 {
		return 0
	}
	return float64(s) / float64(total)
}

func (p *Proxy) Observations() int64 {
	return atomic.LoadInt64(&p.successes) + atomic.LoadInt64(&p.failures)
}

// ProtectionKind is the closed set of site protection classifications.
type ProtectionKind string

const (
	ProtectionNone       ProtectionKind = "none"
	ProtectionCloudflare ProtectionKind = "cloudflare"
	ProtectionWAF        ProtectionKind = "waf"
	ProtectionCaptcha    ProtectionKind = "captcha"
	ProtectionRateLimit  ProtectionKind = "rate_limit"
	ProtectionUnknown    ProtectionKind = "unknown"
)

// SiteKind is the closed set of page rendering classifications.
type SiteKind string

const (
	SiteStatic SiteKind = "static"
	SiteSPA    SiteKind = "spa"
	SiteHybrid SiteKind = "hybrid"
)

// SiteProfile describes a single URL after probing. Invariant: Reachable
// implies CanonicalURL is one of the four probed variants.
type SiteProfile struct {
	Reachable    bool
	Protection   ProtectionKind
	Kind         SiteKind
	LatencyMS    int
	CanonicalURL string
	CachedHTML   []byte
}

// FetchStatus is the tagged-union discriminant for FetchOutcome.
type FetchStatus string

const (
	FetchOK   FetchStatus = "ok"
	FetchFail FetchStatus = "fail"
)

// FetchOutcome is the result of one (url, proxy, strategy) attempt.
// Invariant: Status==FetchOK implies HTTPStatus in [200,399], non-empty
// Body, and not a soft-404 signature; Status==FetchFail implies Reason is
// a valid taxonomy.Reason and Body/HTTPStatus are zero values.
type FetchOutcome struct {
	Status     FetchStatus
	Body       []byte
	HTTPStatus int
	FinalURL   string
	ElapsedMS  int64
	Reason     taxonomy.Reason
	// Headers is populated whenever a response was actually received (even
	// a non-2xx one), so the analyzer can classify protection signals
	// (cf-ray, Retry-After) regardless of fetch outcome. Never serialized.
	Headers http.Header
}

func (o FetchOutcome) OK() bool { return o.Status == FetchOK }

// CompanyWork is one batch item. Mutated only by its owning orchestrator
// task; destroyed after being flushed to persistence.
type CompanyWork struct {
	RegistrationID string
	URL            string
	TradeName      string
	City           string
}

// PageText is one page's extracted content, part of a ScrapeResult.
type PageText struct {
	URL   string
	Text  string
	Bytes int
}

// SubpageStats tallies the subpage mini-batch fetch results for one company.
type SubpageStats struct {
	Attempted      int
	OK             int
	Failed         int
	ReasonHistogram map[taxonomy.Reason]int
}

// ScrapeResult is returned by the orchestrator for one company. Invariant:
// exactly one of {Pages non-empty, MainPageFailReason set} holds.
type ScrapeResult struct {
	Pages              []PageText
	MainPageFailReason *taxonomy.Reason
	SubpageStats       SubpageStats
	LinksSeen          int
	LinksSelected      int
	Retries            int
}

var (
	ErrPoolEmpty        = errors.New("proxy pool: no active proxies")
	ErrGateTimeout       = errors.New("concurrency gate: acquire timed out")
	ErrRateLimitTimeout  = errors.New("rate limiter: wait timed out")
	ErrCircuitOpen       = errors.New("circuit breaker: host is open")
	ErrInvalidSeedURL    = errors.New("company work: url is required")
)

// FabricError wraps a lower-level error with the company/host it occurred
// for, preserving Unwrap() so callers can still errors.Is against the
// sentinels above.
type FabricError struct {
	Host string
	Op   string
	Err  error
}

func (e *FabricError) Error() string { return e.Op + " (" + e.Host + "): " + e.Err.Error() }
func (e *FabricError) Unwrap() error { return e.Err }

func NewFabricError(host, op string, err error) *FabricError {
	return &FabricError{Host: host, Op: op, Err: err}
}

// ProcessingTimeHistogram is the percentile slice of the status object.
type ProcessingTimeHistogram struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	P50 float64 `json:"p50"`
	P60 float64 `json:"p60"`
	P70 float64 `json:"p70"`
	P80 float64 `json:"p80"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// SubpagePipelineStatus is the subpage_pipeline section of the status object.
type SubpagePipelineStatus struct {
	LinksInHTMLTotal        int             `json:"links_in_html_total"`
	LinksAfterFilter        int             `json:"links_after_filter"`
	LinksSelected           int             `json:"links_selected"`
	LinksPerCompanyAvg      float64         `json:"links_per_company_avg"`
	SelectedPerCompanyAvg   float64         `json:"selected_per_company_avg"`
	ZeroLinksCompanies      int             `json:"zero_links_companies"`
	ZeroLinksPct            float64         `json:"zero_links_pct"`
	MainPageFailures        int             `json:"main_page_failures"`
	MainPageFailReasons     map[string]int  `json:"main_page_fail_reasons"`
	SubpagesAttempted       int             `json:"subpages_attempted"`
	SubpagesOK              int             `json:"subpages_ok"`
	SubpagesFailed          int             `json:"subpages_failed"`
	SubpageSuccessRatePct   float64         `json:"subpage_success_rate_pct"`
	SubpageErrorBreakdown   map[string]int  `json:"subpage_error_breakdown"`
}

// LastError is one entry of the status object's last_errors ring.
type LastError struct {
	ID    string    `json:"id"`
	URL   string    `json:"url"`
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// InstanceStatus is one entry of the status object's instances array
// (one worker/process reporting in).
type InstanceStatus struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	Processed        int     `json:"processed"`
	Success          int     `json:"success"`
	Errors           int     `json:"errors"`
	ThroughputPerMin float64 `json:"throughput_per_min"`
}

// InfrastructureStatus aggregates the four core components' own snapshots.
type InfrastructureStatus struct {
	ProxyPool      any `json:"proxy_pool"`
	Concurrency    any `json:"concurrency"`
	RateLimiter    any `json:"rate_limiter"`
	CircuitBreaker any `json:"circuit_breaker"`
}

// StatusSnapshot is the stable batch-status object shape of spec.md §6.
// Field order/names/json tags are binding. StatusTracker.Snapshot renders
// it under the tracker's mutex, so a read holds off BeginCompany and
// RecordCompany until it returns.
type StatusSnapshot struct {
	BatchID            string                  `json:"batch_id"`
	Status              string                  `json:"status"`
	Total               int                     `json:"total"`
	Processed           int                     `json:"processed"`
	SuccessCount        int                     `json:"success_count"`
	ErrorCount          int                     `json:"error_count"`
	SuccessRatePct      float64                 `json:"success_rate_pct"`
	Remaining           int                     `json:"remaining"`
	InProgress          int                     `json:"in_progress"`
	PeakInProgress      int                     `json:"peak_in_progress"`
	ThroughputPerMin    float64                 `json:"throughput_per_min"`
	ElapsedSeconds      float64                 `json:"elapsed_seconds"`
	ProcessingTimeMS    ProcessingTimeHistogram `json:"processing_time_ms"`
	ErrorBreakdown      map[string]int          `json:"error_breakdown"`
	PagesPerCompanyAvg  float64                 `json:"pages_per_company_avg"`
	TotalRetries        int                     `json:"total_retries"`
	SubpagePipeline     SubpagePipelineStatus   `json:"subpage_pipeline"`
	Infrastructure      InfrastructureStatus    `json:"infrastructure"`
	LastErrors          []LastError             `json:"last_errors"`
	Instances           []InstanceStatus        `json:"instances"`
}
