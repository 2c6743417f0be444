// Package fetcher implements the HTTP Fetcher (spec.md §4.5): a single
// (url, proxy, strategy) -> FetchOutcome primitive with closed-taxonomy
// classification. Grounded on engine/internal/crawler/colly_fetcher.go's
// atomic stat counters and engine/crawler/fetcher.go's public contract
// shape, re-based on a plain net/http.Client per strategy instead of a
// colly.Collector, since the fetcher here is a single-attempt primitive,
// not a crawl-driving framework (colly's retry/depth machinery belongs to
// the orchestrator per Design Notes §9, not to this primitive). It keeps
// colly_fetcher.go's colly.Debugger(&debug.LogDebugger{}) request-tracing
// idiom as an opt-in WithDebugger option instead, since that part of
// colly composes cleanly with a one-shot Fetch call.
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2/debug"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/models"
)

// maxBodyBytes is the allocation bound from Design Notes §9: HTML parsing
// must be allocation-bounded at ~1MB per page after decoding. A runaway
// page is truncated, not rejected.
const maxBodyBytes = 1 << 20

// soft404MinBytes and soft404Substrings back the length+substring signal
// of the soft-404 heuristic (spec.md §4.5, DESIGN.md Open Question 2).
const soft404MinBytes = 500

var soft404Substrings = []string{"not found", "página não encontrada", "pagina nao encontrada"}

// Stats holds atomic counters for thread-safe statistics, mirroring
// colly_fetcher.go's fetcherStats.
type Stats struct {
	requestsCompleted int64
	requestsFailed     int64
	bytesDownloaded    int64
	totalLatencyNS     int64
}

func (s *Stats) Completed() int64 { return atomic.LoadInt64(&s.requestsCompleted) }
func (s *Stats) Failed() int64    { return atomic.LoadInt64(&s.requestsFailed) }
func (s *Stats) Bytes() int64     { return atomic.LoadInt64(&s.bytesDownloaded) }

func (s *Stats) AverageLatency() time.Duration {
	completed := atomic.LoadInt64(&s.requestsCompleted)
	if completed == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&s.totalLatencyNS) / completed)
}

// Fetcher performs single-attempt fetches using a net/http.Client built
// per strategy. It never retries (retry is the orchestrator's job) and
// never reclassifies a reason once assigned.
type Fetcher struct {
	stats Stats

	mu       sync.Mutex
	known404 map[string][]byte // per-host cached canonical 404 body

	debugger  debug.Debugger
	requestID uint32
}

// Option customizes a Fetcher at construction.
type Option func(*Fetcher)

// WithDebugger attaches a colly/v2/debug.Debugger that receives a
// request/response event pair per Fetch call, the same request-tracing
// idiom colly_fetcher.go got from colly.Debugger(&debug.LogDebugger{}) —
// opt-in here since this Fetcher issues one request per call rather than
// driving a crawl, so tracing every call by default would be noisy.
func WithDebugger(d debug.Debugger) Option {
	return func(f *Fetcher) { f.debugger = d }
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{known404: make(map[string][]byte)}
	for _, o := range opts {
		o(f)
	}
	if f.debugger != nil {
		_ = f.debugger.Init()
	}
	return f
}

func (f *Fetcher) Stats() *Stats { return &f.stats }

func (f *Fetcher) traceEvent(requestID uint32, eventType string, values map[string]string) {
	if f.debugger == nil {
		return
	}
	f.debugger.Event(&debug.Event{
		RequestID: requestID,
		Type:      eventType,
		Values:    values,
	})
}

// Fetch performs one (url, proxy, strategy) attempt bounded by deadline.
// probeMode, when true, classifies TLS handshake failures as probe:ssl
// instead of proxy:connection, matching §4.5's "probe:ssl (when called
// from Prober) or proxy:connection (otherwise)" rule.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, proxy *models.Proxy, strategy Strategy, deadline time.Duration, probeMode bool) models.FetchOutcome {
	start := time.Now()
	reqID := atomic.AddUint32(&f.requestID, 1)
	u, err := url.Parse(rawURL)
	if err != nil {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return fail(taxonomy.ScrapeError)
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	timeouts := timeoutsFor(strategy)
	client := f.clientFor(proxy, timeouts)

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, u.String(), nil)
	if err != nil {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return fail(taxonomy.ScrapeError)
	}
	req.Header.Set("User-Agent", userAgentFor(strategy))

	f.traceEvent(reqID, "request", map[string]string{"url": u.String(), "strategy": string(strategy)})

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		f.traceEvent(reqID, "error", map[string]string{"url": u.String(), "error": err.Error()})
		return fail(classifyTransportError(err, probeMode))
	}
	defer func() { _ = resp.Body.Close() }()

	body, truncated := readBounded(resp.Body, maxBodyBytes)
	_ = truncated
	elapsed := time.Since(start)

	atomic.AddInt64(&f.stats.bytesDownloaded, int64(len(body)))

	if resp.StatusCode >= 500 {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return failWithHeaders(taxonomy.ProxyHTTP5xx, resp.Header)
	}
	if resp.StatusCode == 403 {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return failWithHeaders(taxonomy.ProxyHTTP403, resp.Header)
	}
	if resp.StatusCode == 429 {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return failWithHeaders(taxonomy.ProxyHTTP429, resp.Header)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return failWithHeaders(taxonomy.ProxyOther, resp.Header)
	}
	if f.isSoftOrEmpty404(u.Hostname(), body) {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return failWithHeaders(taxonomy.ProxyEmptyResponse, resp.Header)
	}

	atomic.AddInt64(&f.stats.requestsCompleted, 1)
	atomic.AddInt64(&f.stats.totalLatencyNS, int64(elapsed))

	f.traceEvent(reqID, "response", map[string]string{"url": u.String(), "status": http.StatusText(resp.StatusCode)})

	return models.FetchOutcome{
		Status:     models.FetchOK,
		Body:       body,
		HTTPStatus: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		ElapsedMS:  elapsed.Milliseconds(),
		Headers:    resp.Header,
	}
}

// CacheKnown404 records body as the canonical 404 page for host, enabling
// the identity signal of the soft-404 heuristic for subsequent fetches.
func (f *Fetcher) CacheKnown404(host string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known404[host] = body
}

func (f *Fetcher) isSoftOrEmpty404(host string, body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if IsSoft404ByLength(body) {
		return true
	}
	if IsSoft404BySubstring(body) {
		return true
	}
	f.mu.Lock()
	known, ok := f.known404[host]
	f.mu.Unlock()
	return ok && bytes.Equal(known, body)
}

// IsSoft404ByLength and IsSoft404BySubstring are exposed independently so
// they are each directly testable, per DESIGN.md Open Question 2.
func IsSoft404ByLength(body []byte) bool { return len(body) < soft404MinBytes }

func IsSoft404BySubstring(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, s := range soft404Substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func (f *Fetcher) clientFor(proxy *models.Proxy, t Timeouts) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: t.Connect}).DialContext,
		TLSHandshakeTimeout: t.Connect,
	}
	if proxy != nil && proxy.Endpoint != nil {
		transport.Proxy = http.ProxyURL(proxy.Endpoint)
	}
	return &http.Client{Transport: transport, Timeout: t.Connect + t.Read}
}

func classifyTransportError(err error, probeMode bool) taxonomy.Reason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return taxonomy.ProxyTimeout
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		if probeMode {
			return taxonomy.ProbeSSL
		}
		return taxonomy.ProxyConnection
	}
	if strings.Contains(err.Error(), "tls") || strings.Contains(err.Error(), "x509") || strings.Contains(err.Error(), "certificate") {
		if probeMode {
			return taxonomy.ProbeSSL
		}
		return taxonomy.ProxyConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return taxonomy.ProxyTimeout
	}
	return taxonomy.ProxyConnection
}

func fail(reason taxonomy.Reason) models.FetchOutcome {
	return models.FetchOutcome{Status: models.FetchFail, Reason: reason}
}

func failWithHeaders(reason taxonomy.Reason, h http.Header) models.FetchOutcome {
	return models.FetchOutcome{Status: models.FetchFail, Reason: reason, Headers: h}
}

func readBounded(r io.Reader, limit int64) ([]byte, bool) {
	limited := io.LimitReader(r, limit+1)
	data, _ := io.ReadAll(limited)
	if int64(len(data)) > limit {
		return data[:limit], true
	}
	return data, false
}
