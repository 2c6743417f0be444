package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/99souls/scrapefabric/engine/internal/taxonomy"
	"github.com/99souls/scrapefabric/engine/models"
)

func TestStatusTrackerAggregatesSuccessAndFailure(t *testing.T) {
	tr := NewStatusTracker("batch-1", 2)

	end := tr.BeginCompany()
	tr.RecordCompany(models.ScrapeResult{
		Pages:         []models.PageText{{URL: "https://a.example.com"}},
		LinksSeen:     4,
		LinksSelected: 2,
	}, 10*time.Millisecond, "https://a.example.com")
	end()

	reason := taxonomy.ProbeTimeout
	end2 := tr.BeginCompany()
	tr.RecordCompany(models.ScrapeResult{MainPageFailReason: &reason}, 5*time.Millisecond, "https://b.example.com")
	end2()

	snap := tr.Snapshot()
	require.Equal(t, 2, snap.Processed)
	require.Equal(t, 1, snap.SuccessCount)
	require.Equal(t, 1, snap.ErrorCount)
	require.Equal(t, "completed", snap.Status)
	require.Equal(t, 1, snap.ErrorBreakdown[string(taxonomy.ProbeTimeout)])
	require.Equal(t, 1, snap.SubpagePipeline.MainPageFailures)
	require.Len(t, snap.LastErrors, 1)
}

func TestStatusTrackerTracksPeakInProgress(t *testing.T) {
	tr := NewStatusTracker("batch-2", 3)
	e1 := tr.BeginCompany()
	e2 := tr.BeginCompany()
	e3 := tr.BeginCompany()
	snap := tr.Snapshot()
	require.Equal(t, 3, snap.InProgress)
	require.Equal(t, 3, snap.PeakInProgress)
	e1()
	e2()
	e3()
	snap = tr.Snapshot()
	require.Equal(t, 0, snap.InProgress)
	require.Equal(t, 3, snap.PeakInProgress)
}

func TestStatusTrackerZeroLinksCompaniesCounted(t *testing.T) {
	tr := NewStatusTracker("batch-3", 1)
	end := tr.BeginCompany()
	tr.RecordCompany(models.ScrapeResult{Pages: []models.PageText{{URL: "https://c.example.com"}}}, time.Millisecond, "https://c.example.com")
	end()
	snap := tr.Snapshot()
	require.Equal(t, 1, snap.SubpagePipeline.ZeroLinksCompanies)
	require.InDelta(t, 100.0, snap.SubpagePipeline.ZeroLinksPct, 0.001)
}
