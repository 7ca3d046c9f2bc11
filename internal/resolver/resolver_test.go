package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/cost"
	"github.com/regiodata/event-dedup/internal/match"
	"github.com/regiodata/event-dedup/internal/model"
	"github.com/regiodata/event-dedup/pkg/anthropic"
)

type fakeStore struct {
	cache map[string]model.MatchCacheEntry
	usage []model.UsageLogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: make(map[string]model.MatchCacheEntry)}
}

func (s *fakeStore) GetAIMatchCache(_ context.Context, hash string) (*model.MatchCacheEntry, error) {
	if e, ok := s.cache[hash]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *fakeStore) PutAIMatchCache(_ context.Context, entry model.MatchCacheEntry) error {
	if _, ok := s.cache[entry.PairHash]; !ok {
		s.cache[entry.PairHash] = entry
	}
	return nil
}

func (s *fakeStore) LogAIUsage(_ context.Context, entry model.UsageLogEntry) error {
	s.usage = append(s.usage, entry)
	return nil
}

func (s *fakeStore) BatchUsageSummary(_ context.Context, batchID string) (*model.UsageSummary, error) {
	var sum model.UsageSummary
	for _, e := range s.usage {
		if e.BatchID != batchID {
			continue
		}
		sum.TotalRequests++
		if e.Cached {
			sum.CachedRequests++
		}
		sum.TotalTokens += e.TotalTokens
		sum.EstimatedCostUSD += e.EstimatedCostUSD
	}
	sum.APIRequests = sum.TotalRequests - sum.CachedRequests
	return &sum, nil
}

type fakeClient struct {
	createMessage func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	createBatch   func(req anthropic.BatchRequest) (*anthropic.BatchResponse, error)
	batchResults  []anthropic.BatchResultItem
	messageCalls  int
	batchCalls    int
}

func (c *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.messageCalls++
	return c.createMessage(req)
}

func (c *fakeClient) CreateBatch(_ context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	c.batchCalls++
	if c.createBatch != nil {
		return c.createBatch(req)
	}
	return &anthropic.BatchResponse{ID: "batch_1", ProcessingStatus: "in_progress"}, nil
}

func (c *fakeClient) GetBatch(_ context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil
}

func (c *fakeClient) GetBatchResults(_ context.Context, _ string) (anthropic.BatchResultIterator, error) {
	return &sliceIterator{items: c.batchResults}, nil
}

type sliceIterator struct {
	items []anthropic.BatchResultItem
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Item() anthropic.BatchResultItem { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error                      { return nil }
func (it *sliceIterator) Close() error                    { return nil }

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
		Usage:   anthropic.TokenUsage{InputTokens: 500, OutputTokens: 50},
	}
}

func judgmentJSON(decision string, confidence float64) string {
	return fmt.Sprintf(`{"decision": %q, "confidence": %.2f, "reasoning": "test"}`, decision, confidence)
}

func testAIConfig() config.AIConfig {
	cfg := config.DefaultMatching().AI
	cfg.Enabled = true
	cfg.RequestsPerSecond = 1000
	cfg.BatchThreshold = 0 // direct mode
	return cfg
}

func testEvents() []model.SourceEvent {
	return []model.SourceEvent{
		{ID: "e1", Title: "Weihnachtsmarkt", LocationCity: "Freiburg", SourceCode: "bz",
			Dates: []model.DateSpan{{Date: "2026-12-01"}}},
		{ID: "e2", Title: "Christkindlmarkt", LocationCity: "Freiburg", SourceCode: "amt",
			Dates: []model.DateSpan{{Date: "2026-12-01"}}},
	}
}

func ambiguousResult(combined float64) match.Result {
	r := match.Result{Decisions: []model.MatchDecision{{
		EventA:   "e1",
		EventB:   "e2",
		Combined: combined,
		Decision: model.DecisionAmbiguous,
		Tier:     model.TierDeterministic,
	}}}
	r.Recount()
	return r
}

func TestResolve_NoEligiblePairs(t *testing.T) {
	client := &fakeClient{}
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	// Outside the score band.
	result, err := r.Resolve(context.Background(), ambiguousResult(0.9), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAmbiguous, result.Decisions[0].Decision)
	assert.Zero(t, client.messageCalls)

	// Not ambiguous at all.
	matched := ambiguousResult(0.5)
	matched.Decisions[0].Decision = model.DecisionMatch
	_, err = r.Resolve(context.Background(), matched, testEvents())
	require.NoError(t, err)
	assert.Zero(t, client.messageCalls)
}

func TestResolve_HighConfidenceSame(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("same", 0.92)), nil
	}}
	store := newFakeStore()
	r := New(client, store, cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)

	d := result.Decisions[0]
	assert.Equal(t, model.DecisionMatch, d.Decision)
	assert.Equal(t, model.TierAI, d.Tier)
	assert.InDelta(t, 0.55, d.Combined, 0.001) // combined score carried forward
	assert.Equal(t, 1, result.MatchCount)
	assert.Equal(t, 0, result.AmbiguousCount)

	// Judgment landed in the cache and the usage log.
	assert.Len(t, store.cache, 1)
	require.Len(t, store.usage, 1)
	assert.False(t, store.usage[0].Cached)
	assert.Greater(t, store.usage[0].EstimatedCostUSD, 0.0)
}

func TestResolve_HighConfidenceDifferent(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("different", 0.85)), nil
	}}
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.45), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNoMatch, result.Decisions[0].Decision)
	assert.Equal(t, model.TierAI, result.Decisions[0].Tier)
}

func TestResolve_LowConfidenceStaysAmbiguous(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("same", 0.4)), nil
	}}
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAmbiguous, result.Decisions[0].Decision)
	assert.Equal(t, model.TierAILowConfidence, result.Decisions[0].Tier)
}

func TestResolve_UnexpectedDecisionValue(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("maybe", 0.95)), nil
	}}
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAmbiguous, result.Decisions[0].Decision)
	assert.Equal(t, model.TierAIUnexpected, result.Decisions[0].Tier)
}

func TestResolve_UnparseableAnswer(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("these are probably the same event"), nil
	}}
	store := newFakeStore()
	r := New(client, store, cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.TierAIUnexpected, result.Decisions[0].Tier)
	assert.Empty(t, store.cache) // garbage is never cached
}

func TestResolve_CallFailureKeepsOriginalDecision(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, errors.New("api unavailable")
	}}
	store := newFakeStore()
	r := New(client, store, cost.NewCalculator(cost.DefaultRates()), testAIConfig())

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAmbiguous, result.Decisions[0].Decision)
	assert.Equal(t, model.TierDeterministic, result.Decisions[0].Tier)

	// Failure still logs a zero-token attempt.
	require.Len(t, store.usage, 1)
	assert.Equal(t, int64(0), store.usage[0].TotalTokens)
}

func TestResolve_CacheHitSkipsAPI(t *testing.T) {
	events := testEvents()
	cfg := testAIConfig()
	store := newFakeStore()
	hash := PairHash(&events[0], &events[1])
	store.cache[hash] = model.MatchCacheEntry{
		PairHash:   hash,
		Decision:   "same",
		Confidence: 0.9,
		Model:      cfg.Model,
	}

	client := &fakeClient{}
	r := New(client, store, cost.NewCalculator(cost.DefaultRates()), cfg)

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), events)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatch, result.Decisions[0].Decision)
	assert.Equal(t, model.TierAI, result.Decisions[0].Tier)
	assert.Zero(t, client.messageCalls)

	// Cache hits log at zero cost.
	require.Len(t, store.usage, 1)
	assert.True(t, store.usage[0].Cached)
	assert.Equal(t, 0.0, store.usage[0].EstimatedCostUSD)
}

func TestResolve_StaleModelCacheEntryIgnored(t *testing.T) {
	events := testEvents()
	cfg := testAIConfig()
	store := newFakeStore()
	hash := PairHash(&events[0], &events[1])
	store.cache[hash] = model.MatchCacheEntry{
		PairHash:   hash,
		Decision:   "different",
		Confidence: 0.9,
		Model:      "some-older-model",
	}

	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("same", 0.9)), nil
	}}
	r := New(client, store, cost.NewCalculator(cost.DefaultRates()), cfg)

	result, err := r.Resolve(context.Background(), ambiguousResult(0.55), events)
	require.NoError(t, err)
	assert.Equal(t, 1, client.messageCalls)
	assert.Equal(t, model.DecisionMatch, result.Decisions[0].Decision)
}

func TestResolve_BatchMode(t *testing.T) {
	cfg := testAIConfig()
	cfg.BatchThreshold = 1
	cfg.CacheEnabled = false

	client := &fakeClient{}
	client.createBatch = func(req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
		items := make([]anthropic.BatchResultItem, 0, len(req.Requests))
		for _, item := range req.Requests {
			items = append(items, anthropic.BatchResultItem{
				CustomID: item.CustomID,
				Type:     "succeeded",
				Message:  textResponse(judgmentJSON("same", 0.9)),
			})
		}
		client.batchResults = items
		return &anthropic.BatchResponse{ID: "batch_1", ProcessingStatus: "in_progress"}, nil
	}

	events := []model.SourceEvent{
		{ID: "e1", Title: "A", SourceCode: "bz"},
		{ID: "e2", Title: "B", SourceCode: "amt"},
		{ID: "e3", Title: "C", SourceCode: "bz"},
		{ID: "e4", Title: "D", SourceCode: "amt"},
	}
	result := match.Result{Decisions: []model.MatchDecision{
		{EventA: "e1", EventB: "e2", Combined: 0.5, Decision: model.DecisionAmbiguous, Tier: model.TierDeterministic},
		{EventA: "e3", EventB: "e4", Combined: 0.6, Decision: model.DecisionAmbiguous, Tier: model.TierDeterministic},
	}}
	result.Recount()

	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), cfg)
	resolved, err := r.Resolve(context.Background(), result, events)
	require.NoError(t, err)

	assert.Equal(t, 1, client.batchCalls)
	assert.Zero(t, client.messageCalls)
	assert.Equal(t, model.DecisionMatch, resolved.Decisions[0].Decision)
	assert.Equal(t, model.DecisionMatch, resolved.Decisions[1].Decision)
	assert.Equal(t, 2, resolved.MatchCount)
}

func TestResolve_CacheTokensAffectLoggedCost(t *testing.T) {
	// A cold prompt cache: the system block bills as a cache write on top
	// of the regular input and output tokens.
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: judgmentJSON("same", 0.9)}},
			Usage: anthropic.TokenUsage{
				InputTokens:              100,
				OutputTokens:             50,
				CacheCreationInputTokens: 2000,
			},
		}, nil
	}}
	store := newFakeStore()
	calc := cost.NewCalculator(cost.DefaultRates())
	cfg := testAIConfig()
	r := New(client, store, calc, cfg)

	_, err := r.Resolve(context.Background(), ambiguousResult(0.55), testEvents())
	require.NoError(t, err)

	require.Len(t, store.usage, 1)
	logged := store.usage[0]
	assert.Equal(t, int64(2000), logged.CacheWriteTokens)
	assert.Equal(t, int64(0), logged.CacheReadTokens)
	assert.Equal(t, int64(2150), logged.TotalTokens)

	want := calc.EstimateCached(cfg.Model, false, 100, 50, 2000, 0)
	assert.InDelta(t, want, logged.EstimatedCostUSD, 1e-12)
	// Cache writes are not free; the plain input+output price undercounts.
	assert.Greater(t, logged.EstimatedCostUSD, calc.Estimate(cfg.Model, false, 100, 50))
}

func TestResolve_InputDecisionsNotMutated(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("same", 0.9)), nil
	}}
	cfg := testAIConfig()
	cfg.CacheEnabled = false
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), cfg)

	original := ambiguousResult(0.55)
	resolved, err := r.Resolve(context.Background(), original, testEvents())
	require.NoError(t, err)

	assert.Equal(t, model.DecisionMatch, resolved.Decisions[0].Decision)
	// The caller's slice still holds the pre-resolution decision.
	assert.Equal(t, model.DecisionAmbiguous, original.Decisions[0].Decision)
	assert.Equal(t, model.TierDeterministic, original.Decisions[0].Tier)
}

func TestResolve_BandBoundariesInclusive(t *testing.T) {
	client := &fakeClient{createMessage: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(judgmentJSON("same", 0.9)), nil
	}}
	cfg := testAIConfig()
	cfg.CacheEnabled = false
	r := New(client, newFakeStore(), cost.NewCalculator(cost.DefaultRates()), cfg)

	for _, combined := range []float64{cfg.MinCombinedScore, cfg.MaxCombinedScore} {
		result, err := r.Resolve(context.Background(), ambiguousResult(combined), testEvents())
		require.NoError(t, err)
		assert.Equal(t, model.DecisionMatch, result.Decisions[0].Decision)
	}
	assert.Equal(t, 2, client.messageCalls)
}
