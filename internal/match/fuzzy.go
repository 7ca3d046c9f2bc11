package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// TokenSortRatio compares two strings after sorting their tokens, making
// the ratio insensitive to word order. Returns a similarity in [0,1].
func TokenSortRatio(a, b string) float64 {
	return levenshtein.Similarity(sortedTokens(a), sortedTokens(b), nil)
}

// TokenSetRatio compares the intersection-anchored token sets of two
// strings, which tolerates one side carrying extra tokens (listing titles
// wrapped in boilerplate). Returns the best of the three pairwise ratios,
// as in the classic token-set formulation.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)

	var inter, diffA, diffB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			diffB = append(diffB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(inter, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(diffA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(diffB, " "))

	best := levenshtein.Similarity(base, combinedA, nil)
	if r := levenshtein.Similarity(base, combinedB, nil); r > best {
		best = r
	}
	if r := levenshtein.Similarity(combinedA, combinedB, nil); r > best {
		best = r
	}
	return best
}

func sortedTokens(s string) string {
	toks := strings.Fields(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		out[tok] = struct{}{}
	}
	return out
}
