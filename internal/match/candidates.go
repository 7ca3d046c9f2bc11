package match

import (
	"sort"

	"github.com/regiodata/event-dedup/internal/model"
)

// Pair is a canonically ordered candidate pair: A < B always holds.
type Pair struct {
	A string
	B string
}

// OrderedPair returns the canonical ordering of two event ids.
func OrderedPair(a, b string) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// PairStats reports how much work blocking saved. TotalPossiblePairs is the
// naive cross-source product baseline (the all-pairs n(n-1)/2 variant is
// deliberately not used anywhere; see DESIGN.md).
type PairStats struct {
	TotalEvents        int     `json:"total_events"`
	TotalPossiblePairs int     `json:"total_possible_pairs"`
	BlockedPairs       int     `json:"blocked_pairs"`
	ReductionPct       float64 `json:"reduction_pct"`
}

// GeneratePairs emits every cross-source pair of events sharing at least
// one blocking key, canonically ordered, deduplicated across keys, and
// sorted for determinism. Pure function; empty input yields empty output
// and zero stats.
func GeneratePairs(events []model.SourceEvent) ([]Pair, PairStats) {
	buckets := make(map[string][]int)
	for i := range events {
		for _, key := range events[i].BlockingKeys {
			buckets[key] = append(buckets[key], i)
		}
	}

	seen := make(map[Pair]struct{})
	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := &events[bucket[i]], &events[bucket[j]]
				if a.SourceCode == b.SourceCode {
					continue
				}
				seen[OrderedPair(a.ID, b.ID)] = struct{}{}
			}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})

	possible := crossSourcePairCount(events)
	reduction := 0.0
	if possible > 0 {
		reduction = (1 - float64(len(pairs))/float64(possible)) * 100
	}

	return pairs, PairStats{
		TotalEvents:        len(events),
		TotalPossiblePairs: possible,
		BlockedPairs:       len(pairs),
		ReductionPct:       reduction,
	}
}

// crossSourcePairCount counts all pairs of events from distinct sources:
// the product of group sizes over every pair of source groups.
func crossSourcePairCount(events []model.SourceEvent) int {
	counts := make(map[string]int)
	for i := range events {
		counts[events[i].SourceCode]++
	}
	sizes := make([]int, 0, len(counts))
	for _, n := range counts {
		sizes = append(sizes, n)
	}
	total := 0
	for i := 0; i < len(sizes); i++ {
		for j := i + 1; j < len(sizes); j++ {
			total += sizes[i] * sizes[j]
		}
	}
	return total
}
