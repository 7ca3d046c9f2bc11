// Package pipeline wires the dedup stages end to end: load, normalize,
// block, score, optionally resolve via AI, cluster, synthesize, persist.
// Every stage before persistence is pure, so a failed run leaves the
// stored canonical set untouched.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/canonical"
	"github.com/regiodata/event-dedup/internal/cluster"
	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/match"
	"github.com/regiodata/event-dedup/internal/model"
	"github.com/regiodata/event-dedup/internal/normalize"
	"github.com/regiodata/event-dedup/internal/store"
)

// Resolver is the AI escalation hook; nil disables it.
type Resolver interface {
	Resolve(ctx context.Context, result match.Result, events []model.SourceEvent) (match.Result, error)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	TotalEvents    int             `json:"total_events"`
	PairStats      match.PairStats `json:"pair_stats"`
	MatchCount     int             `json:"match_count"`
	AmbiguousCount int             `json:"ambiguous_count"`
	NoMatchCount   int             `json:"no_match_count"`
	ClusterCount   int             `json:"cluster_count"`
	SingletonCount int             `json:"singleton_count"`
	FlaggedCount   int             `json:"flagged_count"`
	CanonicalCount int             `json:"canonical_count"`
	EnrichedCount  int             `json:"enriched_count"`
}

// Pipeline runs the full dedup over the stored source events.
type Pipeline struct {
	store      store.Store
	normalizer *normalize.Normalizer
	resolver   Resolver
	cfg        *config.MatchingConfig
}

// New assembles a Pipeline. Pass a nil resolver when AI resolution is
// disabled.
func New(st store.Store, normalizer *normalize.Normalizer, res Resolver, cfg *config.MatchingConfig) *Pipeline {
	return &Pipeline{store: st, normalizer: normalizer, resolver: res, cfg: cfg}
}

// Run executes the pipeline over all stored source events and atomically
// replaces the canonical set. Returns without persisting on any stage
// error.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	events, err := p.store.ListSourceEvents(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load source events")
	}
	if len(events) == 0 {
		zap.L().Info("pipeline: no source events, nothing to do")
		return &RunResult{}, nil
	}

	p.normalizer.Apply(events)
	match.AssignBlockingKeys(events, p.cfg.Blocking)

	result := match.ScorePairs(events, p.cfg)

	if p.resolver != nil && p.cfg.AI.Enabled {
		resolved, err := p.resolver.Resolve(ctx, result, events)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: ai resolution")
		}
		result = resolved
	}

	canonicals, clusters, err := p.synthesize(ctx, events, result)
	if err != nil {
		return nil, err
	}

	enriched, err := p.enrich(ctx, canonicals, events)
	if err != nil {
		return nil, err
	}

	if err := p.store.ReplaceCanonical(ctx, canonicals, result.Decisions); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist")
	}

	run := &RunResult{
		TotalEvents:    len(events),
		PairStats:      result.Stats,
		MatchCount:     result.MatchCount,
		AmbiguousCount: result.AmbiguousCount,
		NoMatchCount:   result.NoMatchCount,
		ClusterCount:   clusters.TotalCount,
		SingletonCount: clusters.SingletonCount,
		FlaggedCount:   len(clusters.Flagged),
		CanonicalCount: len(canonicals),
		EnrichedCount:  enriched,
	}

	zap.L().Info("pipeline complete",
		zap.Int("total_events", run.TotalEvents),
		zap.Int("matches", run.MatchCount),
		zap.Int("ambiguous", run.AmbiguousCount),
		zap.Int("canonicals", run.CanonicalCount),
		zap.Int("flagged", run.FlaggedCount),
		zap.Float64("reduction_pct", run.PairStats.ReductionPct),
	)

	return run, nil
}

// synthesize clusters the decisions and builds one canonical per cluster,
// valid and flagged alike. Flagged clusters still synthesize, but carry
// needs_review so the merge is visible, not silent.
func (p *Pipeline) synthesize(ctx context.Context, events []model.SourceEvent, result match.Result) ([]model.CanonicalEvent, cluster.Result, error) {
	byID := make(map[string]*model.SourceEvent, len(events))
	ids := make([]string, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
		ids[i] = events[i].ID
	}

	clusters := cluster.Build(result.Decisions, ids, byID, p.cfg.Cluster)

	var canonicals []model.CanonicalEvent
	build := func(c cluster.Cluster, flagged bool) error {
		sources := make([]model.SourceEvent, 0, c.Size())
		for _, id := range c.Members {
			if e, ok := byID[id]; ok {
				sources = append(sources, *e)
			}
		}
		merged, err := canonical.Synthesize(sources, p.cfg.Canonical)
		if err != nil {
			return eris.Wrap(err, "pipeline: synthesize cluster")
		}
		merged.NeedsReview = flagged
		merged.AIAssisted = clusterHasAIDecisions(c.Members, result.Decisions)
		if len(c.Edges) > 0 {
			conf := c.MeanEdgeWeight()
			merged.MatchConfidence = &conf
		}
		canonicals = append(canonicals, merged)
		return nil
	}

	for _, c := range clusters.Valid {
		if err := build(c, false); err != nil {
			return nil, clusters, err
		}
	}
	for _, c := range clusters.Flagged {
		if err := build(c, true); err != nil {
			return nil, clusters, err
		}
	}

	return canonicals, clusters, nil
}

// enrich carries forward text fields from the previous canonical set when
// a new synthesis covers the same sources but would shorten them. Matched
// by source-event overlap; returns how many canonicals were enriched.
func (p *Pipeline) enrich(ctx context.Context, canonicals []model.CanonicalEvent, events []model.SourceEvent) (int, error) {
	existing, err := p.store.ListCanonicalEvents(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: load existing canonicals")
	}
	if len(existing) == 0 {
		return 0, nil
	}

	byID := make(map[string]*model.SourceEvent, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	// Index previous canonicals by each contributing source event.
	prevBySource := make(map[string]*model.CanonicalEvent)
	for i := range existing {
		for _, sid := range existing[i].SourceEventIDs {
			prevBySource[sid] = &existing[i]
		}
	}

	enriched := 0
	for i := range canonicals {
		prev := previousFor(&canonicals[i], prevBySource)
		if prev == nil {
			continue
		}
		sources := make([]model.SourceEvent, 0, len(canonicals[i].SourceEventIDs))
		for _, sid := range canonicals[i].SourceEventIDs {
			if e, ok := byID[sid]; ok {
				sources = append(sources, *e)
			}
		}
		merged, err := canonical.Enrich(*prev, sources, p.cfg.Canonical)
		if err != nil {
			return enriched, eris.Wrap(err, "pipeline: enrich canonical")
		}
		merged.NeedsReview = canonicals[i].NeedsReview
		merged.AIAssisted = canonicals[i].AIAssisted
		merged.MatchConfidence = canonicals[i].MatchConfidence
		canonicals[i] = merged
		enriched++
	}
	return enriched, nil
}

// previousFor finds the existing canonical sharing the most source events
// with the new one.
func previousFor(c *model.CanonicalEvent, prevBySource map[string]*model.CanonicalEvent) *model.CanonicalEvent {
	counts := make(map[*model.CanonicalEvent]int)
	for _, sid := range c.SourceEventIDs {
		if prev, ok := prevBySource[sid]; ok {
			counts[prev]++
		}
	}
	var best *model.CanonicalEvent
	bestCount := 0
	for prev, n := range counts {
		if n > bestCount {
			best, bestCount = prev, n
		}
	}
	return best
}

// clusterHasAIDecisions reports whether any decision with both endpoints
// inside the cluster came from the AI resolver, regardless of outcome.
func clusterHasAIDecisions(members []string, decisions []model.MatchDecision) bool {
	inCluster := make(map[string]struct{}, len(members))
	for _, id := range members {
		inCluster[id] = struct{}{}
	}
	for _, d := range decisions {
		if !d.Tier.AI() {
			continue
		}
		if _, okA := inCluster[d.EventA]; !okA {
			continue
		}
		if _, okB := inCluster[d.EventB]; okB {
			return true
		}
	}
	return false
}
