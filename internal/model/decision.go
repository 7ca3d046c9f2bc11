package model

// Decision classifies a candidate pair.
type Decision string

const (
	DecisionMatch     Decision = "match"
	DecisionNoMatch   Decision = "no_match"
	DecisionAmbiguous Decision = "ambiguous"
)

// Tier records which mechanism produced a decision.
type Tier string

const (
	TierDeterministic   Tier = "deterministic"
	TierAI              Tier = "ai"
	TierAILowConfidence Tier = "ai_low_confidence"
	TierAIUnexpected    Tier = "ai_unexpected"
)

// AI reports whether the decision came from the AI resolver (any outcome).
func (t Tier) AI() bool {
	return t == TierAI || t == TierAILowConfidence || t == TierAIUnexpected
}

// SignalScores holds the four independent pairwise signals, each in [0,1].
// Immutable once computed; the AI resolver carries them forward unchanged.
type SignalScores struct {
	Date        float64 `json:"date"`
	Geo         float64 `json:"geo"`
	Title       float64 `json:"title"`
	Description float64 `json:"description"`
}

// MatchDecision is one pairwise decision. EventA < EventB always holds
// (canonical ordering). Replaced, never mutated, when the AI resolver
// overrides the decision.
type MatchDecision struct {
	EventA   string       `json:"event_id_a"`
	EventB   string       `json:"event_id_b"`
	Signals  SignalScores `json:"signals"`
	Combined float64      `json:"combined_score"`
	Decision Decision     `json:"decision"`
	Tier     Tier         `json:"tier"`
}

// WithDecision returns a copy with a new decision and tier, preserving
// signals and the combined score.
func (d MatchDecision) WithDecision(dec Decision, tier Tier) MatchDecision {
	d.Decision = dec
	d.Tier = tier
	return d
}
