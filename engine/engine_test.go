package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/99souls/scrapefabric/engine/models"
	"github.com/99souls/scrapefabric/engine/telemetry/health"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidateRejectsBadTunables(t *testing.T) {
	cfg := Defaults()
	cfg.GlobalConcurrency = 0
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.ProxyMinSuccessRate = 1.5
	require.Error(t, cfg.Validate())
}

func TestNewConstructsFacadeWithoutProxies(t *testing.T) {
	cfg := Defaults()
	eng, err := New(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Stop() }()

	snap := eng.HealthSnapshot(context.Background())
	require.Equal(t, health.StatusUnhealthy, snap.Overall, "no proxies configured should surface as unhealthy")

	infra := eng.InfrastructureSnapshot()
	require.NotNil(t, infra.ProxyPool)
	require.NotNil(t, infra.Concurrency)
	require.NotNil(t, infra.RateLimiter)
}

func TestRunBatchWithNoWorkCompletesImmediately(t *testing.T) {
	eng, err := New(Defaults(), nil)
	require.NoError(t, err)
	defer func() { _ = eng.Stop() }()

	tracker := eng.NewBatchTracker("b1", 0)
	eng.RunBatch(context.Background(), tracker, nil)

	snap := eng.Status(tracker)
	require.Equal(t, "completed", snap.Status)
	require.Equal(t, 0, snap.Total)
}

func TestRunBatchWithCollaboratorSinkReceivesStatus(t *testing.T) {
	var savedStatuses []models.StatusSnapshot
	sink := recordingSink{onStatus: func(s models.StatusSnapshot) { savedStatuses = append(savedStatuses, s) }}

	eng, err := New(Defaults(), nil, WithPersistenceSink(sink))
	require.NoError(t, err)
	defer func() { _ = eng.Stop() }()

	tracker := eng.NewBatchTracker("b2", 0)
	eng.RunBatch(context.Background(), tracker, nil)

	require.Len(t, savedStatuses, 1)
	require.Equal(t, "b2", savedStatuses[0].BatchID)
}

type recordingSink struct {
	onStatus func(models.StatusSnapshot)
}

func (recordingSink) SavePages(ctx context.Context, batchID, companyID string, pages []models.PageText, stats models.SubpageStats) error {
	return nil
}

func (s recordingSink) SaveStatus(ctx context.Context, batchID string, snapshot models.StatusSnapshot) error {
	if s.onStatus != nil {
		s.onStatus(snapshot)
	}
	return nil
}

func TestLoadConfigLayersEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("global_concurrency: 7\nper_domain_limit: 3\n"), 0o644))

	t.Setenv("SCRAPEFABRIC_GLOBAL_CONCURRENCY", "9")

	store, err := LoadConfig(path)
	require.NoError(t, err)

	cfg := store.Current()
	require.Equal(t, 9, cfg.GlobalConcurrency, "env var must win over the file")
	require.Equal(t, 3, cfg.PerDomainLimit)
	require.Equal(t, int64(1), store.Audit()[0].Version)
}
