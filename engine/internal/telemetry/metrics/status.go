package metrics

import (
	"sync"
	"time"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/models"
)

const lastErrorsRingSize = 50

// StatusTracker accumulates per-company outcomes for one batch and renders
// the stable status-object shape of spec.md §6. Grounded on
// engine/internal/pipeline/pipeline.go's StageMetrics/PipelineMetrics
// running-counter idiom, generalized from stage counts to per-company
// scrape outcomes plus a percentile reservoir for processing time.
type StatusTracker struct {
	batchID string
	total   int
	started time.Time

	mu                  sync.Mutex
	processed           int
	success             int
	errored             int
	peakInProgress      int
	inProgress          int
	totalRetries        int
	pagesTotal          int
	linksInHTMLTotal    int
	linksAfterFilter    int
	linksSelectedTotal  int
	zeroLinksCompanies  int
	mainPageFailures    int
	mainPageFailReasons map[taxonomy.Reason]int
	subpagesAttempted   int
	subpagesOK          int
	subpagesFailed      int
	subpageErrors       map[taxonomy.Reason]int
	errorBreakdown      map[taxonomy.Reason]int
	lastErrors          []models.LastError

	reservoir *Reservoir
}

func NewStatusTracker(batchID string, total int) *StatusTracker {
	return &StatusTracker{
		batchID:             batchID,
		total:               total,
		started:             time.Now(),
		mainPageFailReasons: make(map[taxonomy.Reason]int),
		subpageErrors:       make(map[taxonomy.Reason]int),
		errorBreakdown:      make(map[taxonomy.Reason]int),
		reservoir:           NewReservoir(),
	}
}

// BatchID returns the batch identifier this tracker was constructed with.
func (t *StatusTracker) BatchID() string { return t.batchID }

// BeginCompany marks one more company as in flight; call its returned
// func when the company's Scrape call returns.
func (t *StatusTracker) BeginCompany() func() {
	t.mu.Lock()
	t.inProgress++
	if t.inProgress > t.peakInProgress {
		t.peakInProgress = t.inProgress
	}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.inProgress--
		t.mu.Unlock()
	}
}

// RecordCompany folds one company's ScrapeResult into the running tally.
func (t *StatusTracker) RecordCompany(res models.ScrapeResult, elapsed time.Duration, seedURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	t.totalRetries += res.Retries
	t.linksInHTMLTotal += res.LinksSeen
	t.linksAfterFilter += res.LinksSeen
	t.linksSelectedTotal += res.LinksSelected
	if res.LinksSeen == 0 {
		t.zeroLinksCompanies++
	}
	t.subpagesAttempted += res.SubpageStats.Attempted
	t.subpagesOK += res.SubpageStats.OK
	t.subpagesFailed += res.SubpageStats.Failed
	for reason, n := range res.SubpageStats.ReasonHistogram {
		t.subpageErrors[reason] += n
	}

	if res.MainPageFailReason != nil {
		t.errored++
		t.mainPageFailures++
		reason := *res.MainPageFailReason
		t.mainPageFailReasons[reason]++
		t.errorBreakdown[reason]++
		t.lastErrors = append(t.lastErrors, models.LastError{
			URL:   seedURL,
			Error: string(reason),
			Time:  time.Now(),
		})
		if len(t.lastErrors) > lastErrorsRingSize {
			t.lastErrors = t.lastErrors[len(t.lastErrors)-lastErrorsRingSize:]
		}
	} else {
		t.success++
		t.pagesTotal += len(res.Pages)
	}

	t.reservoir.Observe(float64(elapsed.Milliseconds()))
}

// Snapshot renders the current tally as a StatusSnapshot. Infrastructure
// is left zero-valued; callers (the engine facade, which owns the
// subsystem handles) fill it in from proxypool/gate/ratelimit/breaker
// Snapshot() calls.
func (t *StatusTracker) Snapshot() models.StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.started)
	status := "running"
	if t.processed >= t.total {
		status = "completed"
	}

	var successRate, throughput, pagesPerCompany float64
	if t.processed > 0 {
		successRate = float64(t.success) / float64(t.processed) * 100
		pagesPerCompany = float64(t.pagesTotal) / float64(t.processed)
	}
	if elapsed.Minutes() > 0 {
		throughput = float64(t.processed) / elapsed.Minutes()
	}

	pct := t.reservoir.Percentiles()

	errBreakdown := make(map[string]int, len(t.errorBreakdown))
	for reason, n := range t.errorBreakdown {
		errBreakdown[string(reason)] = n
	}
	mainFailReasons := make(map[string]int, len(t.mainPageFailReasons))
	for reason, n := range t.mainPageFailReasons {
		mainFailReasons[string(reason)] = n
	}
	subpageErrs := make(map[string]int, len(t.subpageErrors))
	for reason, n := range t.subpageErrors {
		subpageErrs[string(reason)] = n
	}

	var linksPerCompanyAvg, selectedPerCompanyAvg, zeroLinksPct, subpageSuccessRate float64
	if t.processed > 0 {
		linksPerCompanyAvg = float64(t.linksInHTMLTotal) / float64(t.processed)
		selectedPerCompanyAvg = float64(t.linksSelectedTotal) / float64(t.processed)
		zeroLinksPct = float64(t.zeroLinksCompanies) / float64(t.processed) * 100
	}
	if t.subpagesAttempted > 0 {
		subpageSuccessRate = float64(t.subpagesOK) / float64(t.subpagesAttempted) * 100
	}

	lastErrors := make([]models.LastError, len(t.lastErrors))
	copy(lastErrors, t.lastErrors)

	return models.StatusSnapshot{
		BatchID:          t.batchID,
		Status:           status,
		Total:            t.total,
		Processed:        t.processed,
		SuccessCount:     t.success,
		ErrorCount:       t.errored,
		SuccessRatePct:   successRate,
		Remaining:        t.total - t.processed,
		InProgress:       t.inProgress,
		PeakInProgress:   t.peakInProgress,
		ThroughputPerMin: throughput,
		ElapsedSeconds:   elapsed.Seconds(),
		ProcessingTimeMS: models.ProcessingTimeHistogram{
			Avg: pct.Avg, Min: pct.Min, Max: pct.Max,
			P50: pct.P50, P60: pct.P60, P70: pct.P70, P80: pct.P80,
			P90: pct.P90, P95: pct.P95, P99: pct.P99,
		},
		ErrorBreakdown:     errBreakdown,
		PagesPerCompanyAvg: pagesPerCompany,
		TotalRetries:       t.totalRetries,
		SubpagePipeline: models.SubpagePipelineStatus{
			LinksInHTMLTotal:      t.linksInHTMLTotal,
			LinksAfterFilter:      t.linksAfterFilter,
			LinksSelected:         t.linksSelectedTotal,
			LinksPerCompanyAvg:    linksPerCompanyAvg,
			SelectedPerCompanyAvg: selectedPerCompanyAvg,
			ZeroLinksCompanies:    t.zeroLinksCompanies,
			ZeroLinksPct:          zeroLinksPct,
			MainPageFailures:      t.mainPageFailures,
			MainPageFailReasons:   mainFailReasons,
			SubpagesAttempted:     t.subpagesAttempted,
			SubpagesOK:            t.subpagesOK,
			SubpagesFailed:        t.subpagesFailed,
			SubpageSuccessRatePct: subpageSuccessRate,
			SubpageErrorBreakdown: subpageErrs,
		},
		LastErrors: lastErrors,
	}
}
