package config

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ScoringWeights holds the relative weights for the four matching signals.
// They are normalized at combine time, so they need not sum to exactly 1.
type ScoringWeights struct {
	Date        float64 `yaml:"date" mapstructure:"date"`
	Geo         float64 `yaml:"geo" mapstructure:"geo"`
	Title       float64 `yaml:"title" mapstructure:"title"`
	Description float64 `yaml:"description" mapstructure:"description"`
}

// Total returns the raw weight sum.
func (w ScoringWeights) Total() float64 {
	return w.Date + w.Geo + w.Title + w.Description
}

// ThresholdConfig holds combined-score decision thresholds. Boundary
// inclusive: score == High is a match, score == Low is a no-match.
// TitleVeto > 0 downgrades a would-be match to ambiguous when the title
// signal alone falls below it; 0 disables the veto.
type ThresholdConfig struct {
	High      float64 `yaml:"high" mapstructure:"high"`
	Low       float64 `yaml:"low" mapstructure:"low"`
	TitleVeto float64 `yaml:"title_veto" mapstructure:"title_veto"`
}

// GeoConfig parameterizes geographic proximity scoring.
type GeoConfig struct {
	MaxDistanceKM      float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
	MinConfidence      float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	NeutralScore       float64 `yaml:"neutral_score" mapstructure:"neutral_score"`
	VenueMatchKM       float64 `yaml:"venue_match_distance_km" mapstructure:"venue_match_distance_km"`
	VenueMismatchScale float64 `yaml:"venue_mismatch_factor" mapstructure:"venue_mismatch_factor"`
}

// DateConfig parameterizes date/time overlap scoring.
type DateConfig struct {
	TimeToleranceMinutes int     `yaml:"time_tolerance_minutes" mapstructure:"time_tolerance_minutes"`
	TimeCloseMinutes     int     `yaml:"time_close_minutes" mapstructure:"time_close_minutes"`
	CloseFactor          float64 `yaml:"close_factor" mapstructure:"close_factor"`
	FarFactor            float64 `yaml:"far_factor" mapstructure:"far_factor"`
	GapPenaltyHours      int     `yaml:"gap_penalty_hours" mapstructure:"gap_penalty_hours"`
	GapPenaltyFactor     float64 `yaml:"gap_penalty_factor" mapstructure:"gap_penalty_factor"`
}

// TitleConfig parameterizes title fuzzy matching. The secondary token-set
// ratio is blended in only when the primary token-sort ratio falls inside
// [BlendLower, BlendUpper]. CrossSourceType, when present, overrides the
// blend for pairs from different source kinds (headline vs listing titles
// diverge systematically).
type TitleConfig struct {
	PrimaryWeight   float64      `yaml:"primary_weight" mapstructure:"primary_weight"`
	SecondaryWeight float64      `yaml:"secondary_weight" mapstructure:"secondary_weight"`
	BlendLower      float64      `yaml:"blend_lower" mapstructure:"blend_lower"`
	BlendUpper      float64      `yaml:"blend_upper" mapstructure:"blend_upper"`
	CrossSourceType *TitleConfig `yaml:"cross_source_type" mapstructure:"cross_source_type"`
}

// BlockingConfig parameterizes blocking key generation.
type BlockingConfig struct {
	GridLatDegrees   float64 `yaml:"grid_lat_degrees" mapstructure:"grid_lat_degrees"`
	GridLonDegrees   float64 `yaml:"grid_lon_degrees" mapstructure:"grid_lon_degrees"`
	GeoMinConfidence float64 `yaml:"geo_min_confidence" mapstructure:"geo_min_confidence"`
	// Plausibility bounding box; coordinates outside it are treated as
	// geocoding errors and excluded from geo blocking.
	LatMin float64 `yaml:"lat_min" mapstructure:"lat_min"`
	LatMax float64 `yaml:"lat_max" mapstructure:"lat_max"`
	LonMin float64 `yaml:"lon_min" mapstructure:"lon_min"`
	LonMax float64 `yaml:"lon_max" mapstructure:"lon_max"`
}

// ClusterConfig holds connected-component coherence constraints.
type ClusterConfig struct {
	MaxClusterSize        int     `yaml:"max_cluster_size" mapstructure:"max_cluster_size"`
	MinInternalSimilarity float64 `yaml:"min_internal_similarity" mapstructure:"min_internal_similarity"`
	MaxDateSpread         int     `yaml:"max_date_spread" mapstructure:"max_date_spread"`
}

// CanonicalConfig parameterizes canonical synthesis.
type CanonicalConfig struct {
	MinTitleLength int `yaml:"min_title_length" mapstructure:"min_title_length"`
}

// AIConfig configures the AI-assisted resolver tier.
type AIConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey              string  `yaml:"api_key" mapstructure:"api_key"`
	Model               string  `yaml:"model" mapstructure:"model"`
	Temperature         float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxOutputTokens     int64   `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxConcurrent       int     `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	CacheEnabled        bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	// Only ambiguous pairs inside [MinCombinedScore, MaxCombinedScore] are
	// worth an external call; the rest stay queued for review.
	MinCombinedScore float64 `yaml:"min_combined_score" mapstructure:"min_combined_score"`
	MaxCombinedScore float64 `yaml:"max_combined_score" mapstructure:"max_combined_score"`
	// BatchThreshold: eligible pair count above which the Message Batches
	// API is used instead of direct concurrent calls. 0 keeps direct mode.
	BatchThreshold int `yaml:"batch_threshold" mapstructure:"batch_threshold"`
}

// CategoryWeights holds category-specific scoring weight overrides with a
// priority order deciding which override wins when a pair shares several
// overridden categories.
type CategoryWeights struct {
	Priority  []string                  `yaml:"priority" mapstructure:"priority"`
	Overrides map[string]ScoringWeights `yaml:"overrides" mapstructure:"overrides"`
}

// MatchingConfig is the top-level matching configuration.
type MatchingConfig struct {
	Scoring         ScoringWeights  `yaml:"scoring" mapstructure:"scoring"`
	Thresholds      ThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Geo             GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Date            DateConfig      `yaml:"date" mapstructure:"date"`
	Title           TitleConfig     `yaml:"title" mapstructure:"title"`
	Blocking        BlockingConfig  `yaml:"blocking" mapstructure:"blocking"`
	Cluster         ClusterConfig   `yaml:"cluster" mapstructure:"cluster"`
	Canonical       CanonicalConfig `yaml:"canonical" mapstructure:"canonical"`
	AI              AIConfig        `yaml:"ai" mapstructure:"ai"`
	CategoryWeights CategoryWeights `yaml:"category_weights" mapstructure:"category_weights"`
}

// Validate fails fast on malformed weights or thresholds so bad values never
// reach the pipeline.
func (m *MatchingConfig) Validate() error {
	if m.Scoring.Total() <= 0 {
		return eris.New("config: scoring weights must sum to a positive value")
	}
	if m.Thresholds.High < m.Thresholds.Low {
		return eris.Errorf("config: threshold high (%.2f) below low (%.2f)",
			m.Thresholds.High, m.Thresholds.Low)
	}
	if m.Thresholds.High > 1 || m.Thresholds.Low < 0 {
		return eris.New("config: thresholds must lie in [0,1]")
	}
	if m.AI.MinCombinedScore > m.AI.MaxCombinedScore {
		return eris.New("config: ai score band is inverted")
	}
	if total := m.Scoring.Total(); math.Abs(total-1.0) > 0.01 {
		zap.L().Warn("config: scoring weights do not sum to 1.0",
			zap.Float64("total", total))
	}
	return nil
}

// DefaultMatching returns the documented default matching configuration.
// Tests and library callers use this; Load applies the same values through
// viper defaults.
func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		Scoring:    ScoringWeights{Date: 0.30, Geo: 0.25, Title: 0.30, Description: 0.15},
		Thresholds: ThresholdConfig{High: 0.75, Low: 0.35},
		Geo: GeoConfig{
			MaxDistanceKM:      10.0,
			MinConfidence:      0.85,
			NeutralScore:       0.5,
			VenueMatchKM:       0.1,
			VenueMismatchScale: 0.5,
		},
		Date: DateConfig{
			TimeToleranceMinutes: 30,
			TimeCloseMinutes:     90,
			CloseFactor:          0.7,
			FarFactor:            0.3,
			GapPenaltyHours:      6,
			GapPenaltyFactor:     0.1,
		},
		Title: TitleConfig{
			PrimaryWeight:   0.7,
			SecondaryWeight: 0.3,
			BlendLower:      0.40,
			BlendUpper:      0.80,
		},
		Blocking: BlockingConfig{
			GridLatDegrees:   0.09,
			GridLonDegrees:   0.13,
			GeoMinConfidence: 0.85,
			LatMin:           47.5,
			LatMax:           48.5,
			LonMin:           7.3,
			LonMax:           8.5,
		},
		Cluster: ClusterConfig{
			MaxClusterSize:        15,
			MinInternalSimilarity: 0.40,
			MaxDateSpread:         3,
		},
		Canonical: CanonicalConfig{MinTitleLength: 10},
		AI: AIConfig{
			Enabled:             false,
			Model:               "claude-haiku-4-5-20251001",
			Temperature:         0.1,
			MaxOutputTokens:     1024,
			MaxConcurrent:       5,
			RequestsPerSecond:   10,
			ConfidenceThreshold: 0.6,
			CacheEnabled:        true,
			MinCombinedScore:    0.40,
			MaxCombinedScore:    0.70,
			BatchThreshold:      25,
		},
	}
}

func setMatchingDefaults(v *viper.Viper) {
	d := DefaultMatching()

	v.SetDefault("matching.scoring.date", d.Scoring.Date)
	v.SetDefault("matching.scoring.geo", d.Scoring.Geo)
	v.SetDefault("matching.scoring.title", d.Scoring.Title)
	v.SetDefault("matching.scoring.description", d.Scoring.Description)

	v.SetDefault("matching.thresholds.high", d.Thresholds.High)
	v.SetDefault("matching.thresholds.low", d.Thresholds.Low)
	v.SetDefault("matching.thresholds.title_veto", d.Thresholds.TitleVeto)

	v.SetDefault("matching.geo.max_distance_km", d.Geo.MaxDistanceKM)
	v.SetDefault("matching.geo.min_confidence", d.Geo.MinConfidence)
	v.SetDefault("matching.geo.neutral_score", d.Geo.NeutralScore)
	v.SetDefault("matching.geo.venue_match_distance_km", d.Geo.VenueMatchKM)
	v.SetDefault("matching.geo.venue_mismatch_factor", d.Geo.VenueMismatchScale)

	v.SetDefault("matching.date.time_tolerance_minutes", d.Date.TimeToleranceMinutes)
	v.SetDefault("matching.date.time_close_minutes", d.Date.TimeCloseMinutes)
	v.SetDefault("matching.date.close_factor", d.Date.CloseFactor)
	v.SetDefault("matching.date.far_factor", d.Date.FarFactor)
	v.SetDefault("matching.date.gap_penalty_hours", d.Date.GapPenaltyHours)
	v.SetDefault("matching.date.gap_penalty_factor", d.Date.GapPenaltyFactor)

	v.SetDefault("matching.title.primary_weight", d.Title.PrimaryWeight)
	v.SetDefault("matching.title.secondary_weight", d.Title.SecondaryWeight)
	v.SetDefault("matching.title.blend_lower", d.Title.BlendLower)
	v.SetDefault("matching.title.blend_upper", d.Title.BlendUpper)

	v.SetDefault("matching.blocking.grid_lat_degrees", d.Blocking.GridLatDegrees)
	v.SetDefault("matching.blocking.grid_lon_degrees", d.Blocking.GridLonDegrees)
	v.SetDefault("matching.blocking.geo_min_confidence", d.Blocking.GeoMinConfidence)
	v.SetDefault("matching.blocking.lat_min", d.Blocking.LatMin)
	v.SetDefault("matching.blocking.lat_max", d.Blocking.LatMax)
	v.SetDefault("matching.blocking.lon_min", d.Blocking.LonMin)
	v.SetDefault("matching.blocking.lon_max", d.Blocking.LonMax)

	v.SetDefault("matching.cluster.max_cluster_size", d.Cluster.MaxClusterSize)
	v.SetDefault("matching.cluster.min_internal_similarity", d.Cluster.MinInternalSimilarity)
	v.SetDefault("matching.cluster.max_date_spread", d.Cluster.MaxDateSpread)

	v.SetDefault("matching.canonical.min_title_length", d.Canonical.MinTitleLength)

	v.SetDefault("matching.ai.enabled", d.AI.Enabled)
	v.SetDefault("matching.ai.model", d.AI.Model)
	v.SetDefault("matching.ai.temperature", d.AI.Temperature)
	v.SetDefault("matching.ai.max_output_tokens", d.AI.MaxOutputTokens)
	v.SetDefault("matching.ai.max_concurrent_requests", d.AI.MaxConcurrent)
	v.SetDefault("matching.ai.requests_per_second", d.AI.RequestsPerSecond)
	v.SetDefault("matching.ai.confidence_threshold", d.AI.ConfidenceThreshold)
	v.SetDefault("matching.ai.cache_enabled", d.AI.CacheEnabled)
	v.SetDefault("matching.ai.min_combined_score", d.AI.MinCombinedScore)
	v.SetDefault("matching.ai.max_combined_score", d.AI.MaxCombinedScore)
	v.SetDefault("matching.ai.batch_threshold", d.AI.BatchThreshold)
}
