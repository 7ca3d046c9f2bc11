package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regiodata/event-dedup/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// A file-backed db: ":memory:" gives every pooled connection its own db.
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_UpsertAndListSourceEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []model.SourceEvent{
		{ID: "e1", Title: "Weihnachtsmarkt", SourceCode: "bz", SourceType: model.SourceTypeArticle,
			Dates: []model.DateSpan{{Date: "2026-12-01"}}},
		{ID: "e2", Title: "Sommerfest", SourceCode: "amt", SourceType: model.SourceTypeListing,
			Dates: []model.DateSpan{{Date: "2026-07-01"}}},
	}
	n, err := s.UpsertSourceEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listed, err := s.ListSourceEvents(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Weihnachtsmarkt", listed[0].Title)

	// Upsert overwrites in place.
	events[0].Title = "Weihnachtsmarkt Freiburg"
	_, err = s.UpsertSourceEvents(ctx, events[:1])
	require.NoError(t, err)

	got, err := s.GetSourceEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Weihnachtsmarkt Freiburg", got.Title)
}

func TestSQLite_UpsertAssignsMissingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []model.SourceEvent{{Title: "Fest", SourceCode: "bz"}}
	n, err := s.UpsertSourceEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotEmpty(t, events[0].ID)
}

func TestSQLite_GetSourceEventMiss(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSourceEvent(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ReplaceCanonical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []model.CanonicalEvent{
		{Title: "Altes Fest", SourceEventIDs: []string{"e1"}, Version: 1},
	}
	require.NoError(t, s.ReplaceCanonical(ctx, first, nil))

	listed, err := s.ListCanonicalEvents(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotEmpty(t, listed[0].ID)
	assert.False(t, listed[0].CreatedAt.IsZero())

	// A second run replaces everything.
	second := []model.CanonicalEvent{
		{Title: "Neues Fest A", SourceEventIDs: []string{"e1", "e2"}, Version: 1},
		{Title: "Neues Fest B", SourceEventIDs: []string{"e3"}, Version: 1},
	}
	decisions := []model.MatchDecision{
		{EventA: "e1", EventB: "e2", Combined: 0.82,
			Decision: model.DecisionMatch, Tier: model.TierDeterministic,
			Signals: model.SignalScores{Date: 1, Geo: 0.5, Title: 0.9, Description: 0.6}},
	}
	require.NoError(t, s.ReplaceCanonical(ctx, second, decisions))

	listed, err = s.ListCanonicalEvents(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, c := range listed {
		assert.NotEqual(t, "Altes Fest", c.Title)
	}

	stored, err := s.ListMatchDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, decisions[0].EventA, stored[0].EventA)
	assert.Equal(t, decisions[0].Signals, stored[0].Signals)
	assert.Equal(t, model.DecisionMatch, stored[0].Decision)
}

func TestSQLite_GetCanonicalEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonicals := []model.CanonicalEvent{{Title: "Fest", SourceEventIDs: []string{"e1"}}}
	require.NoError(t, s.ReplaceCanonical(ctx, canonicals, nil))

	got, err := s.GetCanonicalEvent(ctx, canonicals[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Fest", got.Title)

	miss, err := s.GetCanonicalEvent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSQLite_ReviewQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonicals := []model.CanonicalEvent{
		{Title: "Sauber", NeedsReview: false},
		{Title: "Verdächtig", NeedsReview: true},
	}
	require.NoError(t, s.ReplaceCanonical(ctx, canonicals, nil))

	queue, err := s.ListReviewQueue(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "Verdächtig", queue[0].Title)

	// Approving clears the flag in the column and in the stored document.
	require.NoError(t, s.SetCanonicalReview(ctx, queue[0].ID, false))

	queue, err = s.ListReviewQueue(ctx, ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, queue)

	got, err := s.GetCanonicalEvent(ctx, canonicals[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.NeedsReview)
}

func TestSQLite_SetCanonicalReviewMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.SetCanonicalReview(context.Background(), "nope", true)
	assert.Error(t, err)
}

func TestSQLite_AIMatchCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	miss, err := s.GetAIMatchCache(ctx, "hash1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	entry := model.MatchCacheEntry{
		PairHash: "hash1", EventA: "e1", EventB: "e2",
		Decision: "same", Confidence: 0.9, Reasoning: "obvious",
		Model: "claude-haiku-4-5-20251001",
	}
	require.NoError(t, s.PutAIMatchCache(ctx, entry))

	got, err := s.GetAIMatchCache(ctx, "hash1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "same", got.Decision)
	assert.Equal(t, 0.9, got.Confidence)
	assert.False(t, got.CreatedAt.IsZero())

	// A racing duplicate insert is silently ignored; first write wins.
	dup := entry
	dup.Decision = "different"
	require.NoError(t, s.PutAIMatchCache(ctx, dup))

	got, err = s.GetAIMatchCache(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, "same", got.Decision)
}

func TestSQLite_UsageSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []model.UsageLogEntry{
		{BatchID: "b1", EventA: "e1", EventB: "e2", Model: "m",
			PromptTokens: 500, CompletionTokens: 50, TotalTokens: 550, EstimatedCostUSD: 0.001},
		{BatchID: "b1", EventA: "e3", EventB: "e4", Model: "m", Cached: true},
		{BatchID: "b2", EventA: "e5", EventB: "e6", Model: "m",
			PromptTokens: 200, CompletionTokens: 20, TotalTokens: 220, EstimatedCostUSD: 0.0005},
	}
	for _, e := range entries {
		require.NoError(t, s.LogAIUsage(ctx, e))
	}

	batch, err := s.BatchUsageSummary(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, batch.TotalRequests)
	assert.Equal(t, 1, batch.CachedRequests)
	assert.Equal(t, 1, batch.APIRequests)
	assert.Equal(t, int64(550), batch.TotalTokens)
	assert.InDelta(t, 0.001, batch.EstimatedCostUSD, 1e-9)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	period, err := s.PeriodUsageSummary(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, period.TotalRequests)
	assert.Equal(t, 2, period.BatchCount)
	assert.Equal(t, int64(770), period.TotalTokens)
}

func TestSQLite_EmptyBatchSummary(t *testing.T) {
	s := newTestStore(t)
	summary, err := s.BatchUsageSummary(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalRequests)
	assert.Equal(t, 0.0, summary.EstimatedCostUSD)
}
