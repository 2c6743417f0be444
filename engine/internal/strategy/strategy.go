// Package strategy implements the Strategy Selector (spec.md §4.8): a
// pure function from a SiteProfile to an ordered fallback list of fetch
// strategies. Design Notes §9: "a pure function over two enumerations" —
// no state, no I/O.
package strategy

import (
	"github.com/99souls/scrapefabric/engine/internal/fetcher"
	"github.com/99souls/scrapefabric/engine/models"
)

// Plan is the selector's output: the ordered strategy list plus whether
// the orchestrator should treat exhaustion of this list as likely-terminal
// (no further local recovery worth attempting) and whether the host
// should be enforced slow regardless of the Gate's own latency sampling.
type Plan struct {
	Strategies    []fetcher.Strategy
	LikelyTerminal bool
	EnforceSlow   bool
}

// Select maps a SiteProfile to its fallback plan, per the defaults table
// in spec.md §4.8. protection=unknown isn't named in that table; it falls
// back to the STANDARD/ROBUST pair used for the unprotected-SPA case.
func Select(profile models.SiteProfile) Plan {
	switch profile.Protection {
	case models.ProtectionNone:
		if profile.Kind == models.SiteSPA {
			return Plan{Strategies: []fetcher.Strategy{fetcher.Standard, fetcher.Robust}}
		}
		return Plan{Strategies: []fetcher.Strategy{fetcher.Fast, fetcher.Standard}}
	case models.ProtectionCloudflare:
		return Plan{Strategies: []fetcher.Strategy{fetcher.Aggressive, fetcher.Robust}}
	case models.ProtectionWAF, models.ProtectionCaptcha:
		return Plan{Strategies: []fetcher.Strategy{fetcher.Aggressive}, LikelyTerminal: true}
	case models.ProtectionRateLimit:
		return Plan{Strategies: []fetcher.Strategy{fetcher.Robust}, EnforceSlow: true}
	default: // models.ProtectionUnknown and any other closed-set member
		return Plan{Strategies: []fetcher.Strategy{fetcher.Standard, fetcher.Robust}}
	}
}
