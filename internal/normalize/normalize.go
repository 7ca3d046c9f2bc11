// Package normalize folds event text into comparable form: case folding,
// German umlaut expansion, diacritic stripping, synonym and prefix rules,
// and city alias resolution.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	umlauts = strings.NewReplacer(
		"ä", "ae", // ä
		"ö", "oe", // ö
		"ü", "ue", // ü
		"ß", "ss", // ß
	)

	// Diacritic folding for everything the umlaut expansion did not cover
	// (é→e, à→a, …): decompose, drop combining marks, recompose.
	foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	whitespaceRe = regexp.MustCompile(`\s+`)
	// Punctuation is stripped but hyphens stay: German compound words
	// depend on them.
	punctuationRe = regexp.MustCompile(`["'!?,.:;()\[\]{}]`)
)

// Text normalizes free text for matching: lowercase, umlaut expansion,
// diacritic folding, whitespace collapse, punctuation strip. Empty input
// yields the empty string.
func Text(s string) string {
	if s == "" {
		return ""
	}

	out := strings.ToLower(s)
	out = norm.NFC.String(out)
	out = umlauts.Replace(out)
	if folded, _, err := transform.String(foldMarks, out); err == nil {
		out = folded
	}
	out = whitespaceRe.ReplaceAllString(out, " ")
	out = punctuationRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// City normalizes a city name and resolves it through the alias map
// (district → parent municipality). The alias map must be keyed by
// normalized names, as produced by LoadCityAliases.
func City(city string, aliases map[string]string) string {
	if city == "" {
		return ""
	}
	normalized := Text(city)
	if parent, ok := aliases[normalized]; ok {
		return parent
	}
	return normalized
}

// ApplySynonyms replaces every dialect variant in s with its canonical
// form. The synonym map must be normalized; replacement runs longest
// variant first so compound variants win over their substrings.
func ApplySynonyms(s string, synonyms *SynonymMap) string {
	if synonyms == nil || len(synonyms.ordered) == 0 {
		return s
	}
	for _, variant := range synonyms.ordered {
		s = strings.ReplaceAll(s, variant, synonyms.canonical[variant])
	}
	return s
}
