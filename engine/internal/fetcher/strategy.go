package fetcher

import "time"

// Strategy is the closed set of fetch strategies (spec.md §4.5). Each
// names a bundle of HTTP-client settings; there is no fifth variant.
type Strategy string

const (
	Fast       Strategy = "FAST"
	Standard   Strategy = "STANDARD"
	Robust     Strategy = "ROBUST"
	Aggressive Strategy = "AGGRESSIVE"
)

// Timeouts holds the connect/read deadlines for a strategy.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
}

// timeoutsFor returns the fixed timeout pair for s; the switch is
// exhaustive with no default, per Design Notes §9 ("tagged variants,
// exhaustive handling").
func timeoutsFor(s Strategy) Timeouts {
	switch s {
	case Fast:
		return Timeouts{Connect: 8 * time.Second, Read: 10 * time.Second}
	case Standard:
		return Timeouts{Connect: 10 * time.Second, Read: 15 * time.Second}
	case Robust:
		return Timeouts{Connect: 12 * time.Second, Read: 20 * time.Second}
	case Aggressive:
		return Timeouts{Connect: 10 * time.Second, Read: 20 * time.Second}
	}
	return Timeouts{Connect: 10 * time.Second, Read: 15 * time.Second}
}

// rotatesUA reports whether s rotates its user-agent per attempt
// (AGGRESSIVE only; every other strategy keeps a stable UA).
func rotatesUA(s Strategy) bool { return s == Aggressive }
