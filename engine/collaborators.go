package engine

import (
	"context"

	"github.com/99souls/scrapefabric/engine/models"
)

// SearchClient finds candidate URLs for a company that has none on file.
// Out of scope for this engine (spec.md §1 Non-goals): the default no-op
// implementation always returns an empty candidate list, matching the
// teacher's EngineStrategies placeholder pattern of injectable-but-absent
// business logic.
type SearchClient interface {
	FindCandidates(ctx context.Context, tradeName, city, registrationID string) ([]string, error)
}

// ProfileFragment is the structured result of one LLM extraction call.
// Field shape is intentionally open (spec.md names the chunking/merging
// logic itself out of scope); callers that wire a real LLMClient decide
// their own schema via the chunk/schema parameters to Extract.
type ProfileFragment struct {
	Fields map[string]string
}

// LLMClient extracts structured fields from one page-text chunk. Out of
// scope for this engine; the no-op default returns an empty fragment.
type LLMClient interface {
	Extract(ctx context.Context, chunk string, schema any) (ProfileFragment, error)
}

// PersistenceSink durably stores scraped pages and status snapshots. Out
// of scope for this engine (spec.md §1: "no persistent cross-process
// learning beyond the in-memory breaker"); the no-op default discards
// everything, letting the engine run standalone in tests and CLI use.
type PersistenceSink interface {
	SavePages(ctx context.Context, batchID, companyID string, pages []models.PageText, stats models.SubpageStats) error
	SaveStatus(ctx context.Context, batchID string, snapshot models.StatusSnapshot) error
}

type noopSearchClient struct{}

func (noopSearchClient) FindCandidates(ctx context.Context, tradeName, city, registrationID string) ([]string, error) {
	return nil, nil
}

type noopLLMClient struct{}

func (noopLLMClient) Extract(ctx context.Context, chunk string, schema any) (ProfileFragment, error) {
	return ProfileFragment{}, nil
}

type noopPersistenceSink struct{}

func (noopPersistenceSink) SavePages(ctx context.Context, batchID, companyID string, pages []models.PageText, stats models.SubpageStats) error {
	return nil
}

func (noopPersistenceSink) SaveStatus(ctx context.Context, batchID string, snapshot models.StatusSnapshot) error {
	return nil
}

// DefaultCollaborators returns the nil-safe no-op implementations used
// when Config leaves a collaborator unset.
func DefaultCollaborators() (SearchClient, LLMClient, PersistenceSink) {
	return noopSearchClient{}, noopLLMClient{}, noopPersistenceSink{}
}
