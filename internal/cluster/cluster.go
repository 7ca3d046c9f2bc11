// Package cluster groups events into clusters from pairwise match
// decisions. Match edges induce an undirected graph; connected components
// become clusters, and each multi-event component is validated for
// coherence before synthesis. Incoherent components are flagged for review
// rather than silently merged.
package cluster

import (
	"sort"

	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/config"
	"github.com/regiodata/event-dedup/internal/model"
)

// Cluster is one connected component of the match graph. Members are
// sorted; Edges holds the match decisions internal to the component.
type Cluster struct {
	Members []string
	Edges   []model.MatchDecision
}

// Size returns the member count.
func (c Cluster) Size() int { return len(c.Members) }

// MeanEdgeWeight returns the average combined score over internal match
// edges, or 0 for singletons.
func (c Cluster) MeanEdgeWeight() float64 {
	if len(c.Edges) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range c.Edges {
		sum += e.Combined
	}
	return sum / float64(len(c.Edges))
}

// HasAIEdges reports whether any internal edge was decided by the AI
// resolver.
func (c Cluster) HasAIEdges() bool {
	for _, e := range c.Edges {
		if e.Tier.AI() {
			return true
		}
	}
	return false
}

// Result partitions components into valid clusters and flagged ones.
// Singletons are always valid. TotalCount covers both lists.
type Result struct {
	Valid          []Cluster
	Flagged        []Cluster
	SingletonCount int
	TotalCount     int
}

// Build clusters events from pairwise decisions. Every event ID appears in
// exactly one cluster: events without any match edge form singletons.
// Decisions with a non-match outcome contribute no edges. The events map
// is optional; when present it enables the date-spread coherence check.
func Build(decisions []model.MatchDecision, eventIDs []string, events map[string]*model.SourceEvent, cfg config.ClusterConfig) Result {
	uf := newUnionFind()
	for _, id := range eventIDs {
		uf.add(id)
	}

	var matchEdges []model.MatchDecision
	for _, d := range decisions {
		if d.Decision != model.DecisionMatch {
			continue
		}
		uf.add(d.EventA)
		uf.add(d.EventB)
		uf.union(d.EventA, d.EventB)
		matchEdges = append(matchEdges, d)
	}

	members := make(map[string][]string)
	for id := range uf.parent {
		root := uf.find(id)
		members[root] = append(members[root], id)
	}
	edges := make(map[string][]model.MatchDecision)
	for _, e := range matchEdges {
		root := uf.find(e.EventA)
		edges[root] = append(edges[root], e)
	}

	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	var result Result
	for _, root := range roots {
		c := Cluster{Members: members[root], Edges: edges[root]}
		sort.Strings(c.Members)

		result.TotalCount++
		switch {
		case c.Size() == 1:
			result.SingletonCount++
			result.Valid = append(result.Valid, c)
		case coherent(c, events, cfg):
			result.Valid = append(result.Valid, c)
		default:
			result.Flagged = append(result.Flagged, c)
		}
	}

	zap.L().Debug("clustered match graph",
		zap.Int("clusters", result.TotalCount),
		zap.Int("singletons", result.SingletonCount),
		zap.Int("flagged", len(result.Flagged)),
	)

	return result
}

// coherent runs the coherence checks in order, short-circuiting on the
// first failure: size cap, mean internal similarity floor, then date
// spread (only when event data is available).
func coherent(c Cluster, events map[string]*model.SourceEvent, cfg config.ClusterConfig) bool {
	if c.Size() > cfg.MaxClusterSize {
		return false
	}

	if len(c.Edges) > 0 && c.MeanEdgeWeight() < cfg.MinInternalSimilarity {
		return false
	}

	if events != nil {
		dates := make(map[string]struct{})
		for _, id := range c.Members {
			e, ok := events[id]
			if !ok {
				continue
			}
			for _, span := range e.Dates {
				if span.Date != "" {
					dates[span.Date] = struct{}{}
				}
			}
		}
		if len(dates) > cfg.MaxDateSpread {
			return false
		}
	}

	return true
}
