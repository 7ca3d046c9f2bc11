package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

func TestCombine_WeightedAverage(t *testing.T) {
	signals := model.SignalScores{Date: 1.0, Geo: 0.5, Title: 1.0, Description: 0.5}
	w := config.ScoringWeights{Date: 0.30, Geo: 0.25, Title: 0.30, Description: 0.15}

	assert.InDelta(t, 0.80, Combine(signals, w), 0.001)
}

func TestCombine_NormalizesWeightSum(t *testing.T) {
	signals := model.SignalScores{Date: 1.0, Geo: 1.0, Title: 1.0, Description: 1.0}
	w := config.ScoringWeights{Date: 2, Geo: 2, Title: 2, Description: 2}

	assert.Equal(t, 1.0, Combine(signals, w))
}

func TestCombine_ZeroWeights(t *testing.T) {
	signals := model.SignalScores{Date: 1.0}
	assert.Equal(t, 0.0, Combine(signals, config.ScoringWeights{}))
}

func TestResolveWeights_NoOverrides(t *testing.T) {
	cfg := config.DefaultMatching()
	a := &model.SourceEvent{Categories: []string{"musik"}}
	b := &model.SourceEvent{Categories: []string{"musik"}}

	assert.Equal(t, cfg.Scoring, ResolveWeights(a, b, &cfg))
}

func TestResolveWeights_SharedCategoryOverride(t *testing.T) {
	cfg := config.DefaultMatching()
	override := config.ScoringWeights{Date: 0.5, Geo: 0.1, Title: 0.3, Description: 0.1}
	cfg.CategoryWeights = config.CategoryWeights{
		Priority:  []string{"markt", "musik"},
		Overrides: map[string]config.ScoringWeights{"markt": override},
	}
	a := &model.SourceEvent{Categories: []string{"musik", "markt"}}
	b := &model.SourceEvent{Categories: []string{"markt"}}

	assert.Equal(t, override, ResolveWeights(a, b, &cfg))
}

func TestResolveWeights_PriorityOrderWins(t *testing.T) {
	cfg := config.DefaultMatching()
	first := config.ScoringWeights{Date: 0.7, Title: 0.3}
	second := config.ScoringWeights{Date: 0.1, Title: 0.9}
	cfg.CategoryWeights = config.CategoryWeights{
		Priority: []string{"markt", "musik"},
		Overrides: map[string]config.ScoringWeights{
			"markt": first,
			"musik": second,
		},
	}
	a := &model.SourceEvent{Categories: []string{"musik", "markt"}}
	b := &model.SourceEvent{Categories: []string{"markt", "musik"}}

	assert.Equal(t, first, ResolveWeights(a, b, &cfg))
}

func TestResolveWeights_NoSharedCategory(t *testing.T) {
	cfg := config.DefaultMatching()
	cfg.CategoryWeights = config.CategoryWeights{
		Priority:  []string{"markt"},
		Overrides: map[string]config.ScoringWeights{"markt": {Date: 1}},
	}
	a := &model.SourceEvent{Categories: []string{"musik"}}
	b := &model.SourceEvent{Categories: []string{"markt"}}

	assert.Equal(t, cfg.Scoring, ResolveWeights(a, b, &cfg))
}

func TestDecide_BoundariesInclusive(t *testing.T) {
	th := config.ThresholdConfig{High: 0.75, Low: 0.35}
	none := model.SignalScores{}

	assert.Equal(t, model.DecisionMatch, Decide(0.75, none, th))
	assert.Equal(t, model.DecisionNoMatch, Decide(0.35, none, th))
	assert.Equal(t, model.DecisionAmbiguous, Decide(0.55, none, th))
	assert.Equal(t, model.DecisionMatch, Decide(0.99, none, th))
	assert.Equal(t, model.DecisionNoMatch, Decide(0.01, none, th))
}

func TestDecide_TitleVeto(t *testing.T) {
	th := config.ThresholdConfig{High: 0.75, Low: 0.35, TitleVeto: 0.3}

	weakTitle := model.SignalScores{Title: 0.2}
	strongTitle := model.SignalScores{Title: 0.9}

	assert.Equal(t, model.DecisionAmbiguous, Decide(0.9, weakTitle, th))
	assert.Equal(t, model.DecisionMatch, Decide(0.9, strongTitle, th))
}

func TestDecide_TitleVetoDisabledByDefault(t *testing.T) {
	th := config.DefaultMatching().Thresholds
	weakTitle := model.SignalScores{Title: 0.0}

	assert.Equal(t, model.DecisionMatch, Decide(0.9, weakTitle, th))
}
