package orchestrator

import "time"

// Config holds every tunable named in spec.md §4.10 and §6's configuration
// table that governs the per-company state machine.
type Config struct {
	// RescueMinChars: if the main page's extracted text is shorter than
	// this AND at least one internal link was found, the orchestrator
	// attempts rescue subpages before giving up on the main page.
	RescueMinChars int
	// RescueMaxAttempts caps how many top-priority subpages rescue tries.
	RescueMaxAttempts int
	// BatchSize is the subpage mini-batch size; each subpage in a batch
	// borrows its own proxy.
	BatchSize int
	// MaxSubpages caps the link prioritiser's selection.
	MaxSubpages int

	ProbeDeadline    time.Duration
	PerRequestFast   time.Duration
	PerRequestSlow   time.Duration
	CompanyDeadline  time.Duration
	MainPageRetries  int // extra attempts per strategy beyond the first
}

func DefaultConfig() Config {
	return Config{
		RescueMinChars:    500,
		RescueMaxAttempts: 3,
		BatchSize:         4,
		MaxSubpages:       5,
		ProbeDeadline:     10 * time.Second,
		PerRequestFast:    12 * time.Second,
		PerRequestSlow:    15 * time.Second,
		CompanyDeadline:   90 * time.Second,
		MainPageRetries:   1,
	}
}
