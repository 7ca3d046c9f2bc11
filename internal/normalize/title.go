package normalize

import (
	"strings"

	"github.com/regiodata/event-dedup/internal/model"
)

// Dash-like separators checked after a prefix: dash, double dash, en dash,
// em dash.
var dashSeparators = []string{" - ", " -- ", " – ", " — "}

// StripPrefix removes the first matching source-label prefix from a title.
// Matching is case-insensitive against the original form; only one prefix
// is stripped, never recursively. Check order: dash, colon, generic.
func StripPrefix(title string, rules *PrefixRules) string {
	if rules == nil {
		return title
	}
	lower := strings.ToLower(title)

	for _, prefix := range rules.DashPrefixes {
		if stripped, ok := stripDashPrefix(title, lower, prefix); ok {
			return stripped
		}
	}
	for _, prefix := range rules.ColonPrefixes {
		pattern := strings.ToLower(prefix) + ": "
		if strings.HasPrefix(lower, pattern) {
			return strings.TrimSpace(title[len(pattern):])
		}
	}
	for _, prefix := range rules.GenericPrefixes {
		if stripped, ok := stripDashPrefix(title, lower, prefix); ok {
			return stripped
		}
	}
	return title
}

func stripDashPrefix(title, lower, prefix string) (string, bool) {
	prefixLower := strings.ToLower(prefix)
	for _, sep := range dashSeparators {
		pattern := prefixLower + sep
		if strings.HasPrefix(lower, pattern) {
			return strings.TrimSpace(title[len(pattern):]), true
		}
	}
	return "", false
}

// Title strips a prefix from the ORIGINAL title, then normalizes and
// applies synonym replacement. This is the standard title pipeline.
func Title(title string, rules *PrefixRules, synonyms *SynonymMap) string {
	stripped := StripPrefix(title, rules)
	return ApplySynonyms(Text(stripped), synonyms)
}

// Normalizer bundles the loaded rule sets and fills the normalized fields
// of source events.
type Normalizer struct {
	Prefixes    *PrefixRules
	Synonyms    *SynonymMap
	CityAliases map[string]string
}

// Apply populates TitleNormalized and LocationCityNormalized on every
// event in place. Original fields are never touched.
func (n *Normalizer) Apply(events []model.SourceEvent) {
	for i := range events {
		events[i].TitleNormalized = Title(events[i].Title, n.Prefixes, n.Synonyms)
		events[i].LocationCityNormalized = City(events[i].LocationCity, n.CityAliases)
	}
}
