package match

import (
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// Result aggregates the scoring phase: every pairwise decision plus the
// blocking statistics and per-decision counts.
type Result struct {
	Decisions      []model.MatchDecision `json:"decisions"`
	Stats          PairStats             `json:"pair_stats"`
	MatchCount     int                   `json:"match_count"`
	AmbiguousCount int                   `json:"ambiguous_count"`
	NoMatchCount   int                   `json:"no_match_count"`
}

// Recount rebuilds the per-decision counters from the decision list.
func (r *Result) Recount() {
	r.MatchCount, r.AmbiguousCount, r.NoMatchCount = 0, 0, 0
	for _, d := range r.Decisions {
		switch d.Decision {
		case model.DecisionMatch:
			r.MatchCount++
		case model.DecisionAmbiguous:
			r.AmbiguousCount++
		default:
			r.NoMatchCount++
		}
	}
}

// ScorePairs runs candidate generation and pairwise scoring over the full
// event set. Pure function: no I/O, deterministic for a given input.
func ScorePairs(events []model.SourceEvent, cfg *config.MatchingConfig) Result {
	pairs, stats := GeneratePairs(events)

	byID := make(map[string]*model.SourceEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	result := Result{
		Decisions: make([]model.MatchDecision, 0, len(pairs)),
		Stats:     stats,
	}

	for _, p := range pairs {
		a, b := byID[p.A], byID[p.B]

		signals := model.SignalScores{
			Date:        DateScore(a, b, cfg.Date),
			Geo:         GeoScore(a, b, cfg.Geo),
			Title:       TitleScore(a, b, cfg.Title),
			Description: DescriptionScore(a, b),
		}
		combined := Combine(signals, ResolveWeights(a, b, cfg))

		result.Decisions = append(result.Decisions, model.MatchDecision{
			EventA:   p.A,
			EventB:   p.B,
			Signals:  signals,
			Combined: combined,
			Decision: Decide(combined, signals, cfg.Thresholds),
			Tier:     model.TierDeterministic,
		})
	}

	result.Recount()

	zap.L().Debug("scored candidate pairs",
		zap.Int("pairs", len(pairs)),
		zap.Int("matches", result.MatchCount),
		zap.Int("ambiguous", result.AmbiguousCount),
		zap.Float64("reduction_pct", stats.ReductionPct),
	)

	return result
}
