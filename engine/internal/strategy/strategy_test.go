package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/99souls/scrapefabric/engine/internal/fetcher"
	"github.com/99souls/scrapefabric/engine/models"
)

func TestSelectStaticNone(t *testing.T) {
	plan := Select(models.SiteProfile{Protection: models.ProtectionNone, Kind: models.SiteStatic})
	require.Equal(t, []fetcher.Strategy{fetcher.Fast, fetcher.Standard}, plan.Strategies)
}

func TestSelectSPANone(t *testing.T) {
	plan := Select(models.SiteProfile{Protection: models.ProtectionNone, Kind: models.SiteSPA})
	require.Equal(t, []fetcher.Strategy{fetcher.Standard, fetcher.Robust}, plan.Strategies)
}

func TestSelectCloudflare(t *testing.T) {
	plan := Select(models.SiteProfile{Protection: models.ProtectionCloudflare})
	require.Equal(t, []fetcher.Strategy{fetcher.Aggressive, fetcher.Robust}, plan.Strategies)
}

func TestSelectWAFIsLikelyTerminal(t *testing.T) {
	plan := Select(models.SiteProfile{Protection: models.ProtectionWAF})
	require.Equal(t, []fetcher.Strategy{fetcher.Aggressive}, plan.Strategies)
	require.True(t, plan.LikelyTerminal)
}

func TestSelectRateLimitEnforcesSlow(t *testing.T) {
	plan := Select(models.SiteProfile{Protection: models.ProtectionRateLimit})
	require.Equal(t, []fetcher.Strategy{fetcher.Robust}, plan.Strategies)
	require.True(t, plan.EnforceSlow)
}
