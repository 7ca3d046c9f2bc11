package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regiodata/event-dedup/internal/model"
)

func TestOrderedPair(t *testing.T) {
	assert.Equal(t, Pair{A: "a", B: "b"}, OrderedPair("b", "a"))
	assert.Equal(t, Pair{A: "a", B: "b"}, OrderedPair("a", "b"))
}

func TestGeneratePairs_CrossSourceOnly(t *testing.T) {
	events := []model.SourceEvent{
		{ID: "e1", SourceCode: "bz", BlockingKeys: []string{"dc|2026-05-01|freiburg"}},
		{ID: "e2", SourceCode: "bz", BlockingKeys: []string{"dc|2026-05-01|freiburg"}},
		{ID: "e3", SourceCode: "amt", BlockingKeys: []string{"dc|2026-05-01|freiburg"}},
	}

	pairs, stats := GeneratePairs(events)
	// e1-e2 share a source; only the two cross-source pairs survive.
	assert.Equal(t, []Pair{{A: "e1", B: "e3"}, {A: "e2", B: "e3"}}, pairs)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 2, stats.TotalPossiblePairs)
	assert.Equal(t, 2, stats.BlockedPairs)
}

func TestGeneratePairs_NoSharedKey(t *testing.T) {
	events := []model.SourceEvent{
		{ID: "e1", SourceCode: "bz", BlockingKeys: []string{"dc|2026-05-01|freiburg"}},
		{ID: "e2", SourceCode: "amt", BlockingKeys: []string{"dc|2026-05-02|freiburg"}},
	}

	pairs, stats := GeneratePairs(events)
	assert.Empty(t, pairs)
	assert.Equal(t, 1, stats.TotalPossiblePairs)
	assert.Equal(t, 0, stats.BlockedPairs)
	assert.InDelta(t, 100.0, stats.ReductionPct, 0.001)
}

func TestGeneratePairs_DedupedAcrossKeys(t *testing.T) {
	keys := []string{"dc|2026-05-01|freiburg", "dg|2026-05-01|47.97|7.80"}
	events := []model.SourceEvent{
		{ID: "e1", SourceCode: "bz", BlockingKeys: keys},
		{ID: "e2", SourceCode: "amt", BlockingKeys: keys},
	}

	pairs, _ := GeneratePairs(events)
	assert.Equal(t, []Pair{{A: "e1", B: "e2"}}, pairs)
}

func TestGeneratePairs_Deterministic(t *testing.T) {
	events := []model.SourceEvent{
		{ID: "e4", SourceCode: "bz", BlockingKeys: []string{"k1", "k2"}},
		{ID: "e1", SourceCode: "amt", BlockingKeys: []string{"k1"}},
		{ID: "e3", SourceCode: "kult", BlockingKeys: []string{"k2"}},
		{ID: "e2", SourceCode: "amt", BlockingKeys: []string{"k2"}},
	}

	first, _ := GeneratePairs(events)
	for i := 0; i < 10; i++ {
		again, _ := GeneratePairs(events)
		assert.Equal(t, first, again)
	}
}

func TestGeneratePairs_Empty(t *testing.T) {
	pairs, stats := GeneratePairs(nil)
	assert.Empty(t, pairs)
	assert.Equal(t, PairStats{}, stats)
}
