package match

import (
	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// Combine computes the weighted average of the four signals. Weights are
// normalized by their sum, so a configuration that does not sum to 1 still
// yields a score in [0,1]. Zero total weight yields 0.
func Combine(s model.SignalScores, w config.ScoringWeights) float64 {
	total := w.Total()
	if total == 0 {
		return 0
	}
	weighted := w.Date*s.Date + w.Geo*s.Geo + w.Title*s.Title + w.Description*s.Description
	return weighted / total
}

// ResolveWeights selects the scoring weights for a pair. When both events
// share a category that has an override, the first such category in the
// configured priority order wins; otherwise the defaults apply.
func ResolveWeights(a, b *model.SourceEvent, cfg *config.MatchingConfig) config.ScoringWeights {
	if len(cfg.CategoryWeights.Priority) == 0 {
		return cfg.Scoring
	}

	shared := make(map[string]struct{})
	catsB := make(map[string]struct{}, len(b.Categories))
	for _, c := range b.Categories {
		catsB[c] = struct{}{}
	}
	for _, c := range a.Categories {
		if _, ok := catsB[c]; ok {
			shared[c] = struct{}{}
		}
	}
	if len(shared) == 0 {
		return cfg.Scoring
	}

	for _, cat := range cfg.CategoryWeights.Priority {
		if _, ok := shared[cat]; !ok {
			continue
		}
		if override, ok := cfg.CategoryWeights.Overrides[cat]; ok {
			return override
		}
	}
	return cfg.Scoring
}

// Decide classifies a combined score against the thresholds. Boundary
// inclusive on both ends. The title veto, when configured, downgrades a
// would-be match to ambiguous if the title signal alone is below the veto
// threshold — high date/geo agreement must not force a merge of clearly
// different-titled events.
func Decide(combined float64, signals model.SignalScores, t config.ThresholdConfig) model.Decision {
	switch {
	case combined >= t.High:
		if t.TitleVeto > 0 && signals.Title < t.TitleVeto {
			return model.DecisionAmbiguous
		}
		return model.DecisionMatch
	case combined <= t.Low:
		return model.DecisionNoMatch
	default:
		return model.DecisionAmbiguous
	}
}
