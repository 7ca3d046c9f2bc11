package normalize

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SynonymMap maps dialect variants to one canonical form, with variants
// ordered longest-first so compound words are replaced before their parts.
type SynonymMap struct {
	canonical map[string]string
	ordered   []string
}

// NewSynonymMap builds a SynonymMap from canonical → variants groups.
// All keys and variants are normalized.
func NewSynonymMap(groups map[string][]string) *SynonymMap {
	canonical := make(map[string]string)
	for canon, variants := range groups {
		nc := Text(canon)
		for _, v := range variants {
			nv := Text(v)
			if nv != "" && nv != nc {
				canonical[nv] = nc
			}
		}
	}
	ordered := make([]string, 0, len(canonical))
	for v := range canonical {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})
	return &SynonymMap{canonical: canonical, ordered: ordered}
}

// Len returns the number of variant mappings.
func (m *SynonymMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ordered)
}

type synonymFile struct {
	SynonymGroups map[string][]string `yaml:"synonym_groups"`
}

// LoadSynonyms reads synonym groups from a YAML file. A missing file yields
// an empty map, not an error.
func LoadSynonyms(path string) (*SynonymMap, error) {
	if path == "" {
		return NewSynonymMap(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSynonymMap(nil), nil
		}
		return nil, eris.Wrap(err, "normalize: read synonyms")
	}
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "normalize: parse synonyms")
	}
	return NewSynonymMap(f.SynonymGroups), nil
}

// PrefixRules lists source-label prefixes stripped from titles before
// normalization, grouped by the separator style they use.
type PrefixRules struct {
	DashPrefixes    []string `yaml:"dash_prefixes"`
	ColonPrefixes   []string `yaml:"colon_prefixes"`
	GenericPrefixes []string `yaml:"generic_prefixes"`
}

// LoadPrefixes reads prefix rules from a YAML file. A missing file yields
// empty rules.
func LoadPrefixes(path string) (*PrefixRules, error) {
	if path == "" {
		return &PrefixRules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PrefixRules{}, nil
		}
		return nil, eris.Wrap(err, "normalize: read prefixes")
	}
	var rules PrefixRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, eris.Wrap(err, "normalize: parse prefixes")
	}
	return &rules, nil
}

// LoadCityAliases reads district → municipality aliases from a YAML file,
// normalizing keys and values so lookups work on normalized city names.
func LoadCityAliases(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, eris.Wrap(err, "normalize: read city aliases")
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "normalize: parse city aliases")
	}
	aliases := make(map[string]string, len(raw))
	for k, v := range raw {
		aliases[Text(k)] = Text(v)
	}
	return aliases, nil
}
