// Package store persists source events, canonical events, match decisions,
// the AI judgment cache, and the usage log. Two implementations exist:
// SQLite for single-node deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/regiodata/event-dedup/internal/model"
)

// ReviewFilter narrows the review queue listing.
type ReviewFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store is the persistence interface for the dedup pipeline.
type Store interface {
	// Source events.
	UpsertSourceEvents(ctx context.Context, events []model.SourceEvent) (int, error)
	ListSourceEvents(ctx context.Context) ([]model.SourceEvent, error)
	GetSourceEvent(ctx context.Context, id string) (*model.SourceEvent, error)

	// Canonical events. ReplaceCanonical atomically swaps the previous
	// run's canonical set and match decisions for the new ones; a failed
	// run must never leave a half-written result behind.
	ListCanonicalEvents(ctx context.Context) ([]model.CanonicalEvent, error)
	GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error)
	ReplaceCanonical(ctx context.Context, canonicals []model.CanonicalEvent, decisions []model.MatchDecision) error
	SetCanonicalReview(ctx context.Context, id string, needsReview bool) error
	ListReviewQueue(ctx context.Context, filter ReviewFilter) ([]model.CanonicalEvent, error)

	// Match decisions from the latest run.
	ListMatchDecisions(ctx context.Context) ([]model.MatchDecision, error)

	// AI judgment cache and usage accounting.
	GetAIMatchCache(ctx context.Context, pairHash string) (*model.MatchCacheEntry, error)
	PutAIMatchCache(ctx context.Context, entry model.MatchCacheEntry) error
	LogAIUsage(ctx context.Context, entry model.UsageLogEntry) error
	BatchUsageSummary(ctx context.Context, batchID string) (*model.UsageSummary, error)
	PeriodUsageSummary(ctx context.Context, from, to time.Time) (*model.UsageSummary, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
