package model

import "time"

// MatchCacheEntry is one cached AI judgment, keyed by the content hash of
// the pair. Content, not record identity, is canonical: the same pair of
// real-world descriptions always maps to the same entry.
type MatchCacheEntry struct {
	PairHash   string    `json:"pair_hash"`
	EventA     string    `json:"event_id_a"`
	EventB     string    `json:"event_id_b"`
	Decision   string    `json:"decision"` // "same" or "different"
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// UsageLogEntry records one AI resolution attempt, cache hit or real call.
// Observational only; matching logic never reads it.
type UsageLogEntry struct {
	ID               int64     `json:"id,omitempty"`
	BatchID          string    `json:"batch_id"`
	EventA           string    `json:"event_id_a"`
	EventB           string    `json:"event_id_b"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CacheWriteTokens int64     `json:"cache_write_tokens"`
	CacheReadTokens  int64     `json:"cache_read_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	Cached           bool      `json:"cached"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// UsageSummary aggregates usage log entries for a batch or period.
type UsageSummary struct {
	BatchCount       int     `json:"batch_count,omitempty"`
	TotalRequests    int     `json:"total_requests"`
	CachedRequests   int     `json:"cached_requests"`
	APIRequests      int     `json:"api_requests"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}
