package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CostTypeOverrides pins cost types for known phrases. Overrides run after
// every classification path, so a matching phrase always wins over both the
// model and the heuristics.
type CostTypeOverrides struct {
	Terms []OverrideTerm `yaml:"terms"`
}

type OverrideTerm struct {
	Phrase   string `yaml:"phrase"`
	CostType string `yaml:"cost_type"`
}

func LoadCostTypeOverrides(path string) (*CostTypeOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var o CostTypeOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse overrides yaml: %w", err)
	}
	for i, term := range o.Terms {
		canonical, ok := canonicalLabel(costTypeVocabulary, term.CostType)
		if !ok {
			return nil, fmt.Errorf("overrides: term %q has unknown cost type %q", term.Phrase, term.CostType)
		}
		o.Terms[i].CostType = canonical
	}
	return &o, nil
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AppendOverrideTerm adds a phrase to the overrides file, creating it if
// needed. Re-adding a known phrase is a no-op.
func AppendOverrideTerm(path, phrase, costType string) error {
	phrase = strings.TrimSpace(phrase)
	canonical, ok := canonicalLabel(costTypeVocabulary, costType)
	if phrase == "" {
		return nil
	}
	if !ok {
		return fmt.Errorf("unknown cost type %q", costType)
	}

	var overrides CostTypeOverrides
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return fmt.Errorf("parse existing overrides: %w", err)
		}
	}

	normalized := normalizePhrase(phrase)
	for _, t := range overrides.Terms {
		if normalizePhrase(t.Phrase) == normalized {
			return nil // already exists
		}
	}

	overrides.Terms = append(overrides.Terms, OverrideTerm{
		Phrase:   phrase,
		CostType: canonical,
	})
	return saveOverrides(path, &overrides)
}

func saveOverrides(path string, overrides *CostTypeOverrides) error {
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Apply rewrites the cost type of every record whose name contains an
// override phrase. The longest matching phrase wins; earlier terms win
// length ties. Returns how many records changed.
func (o *CostTypeOverrides) Apply(records []MappedRecord) int {
	if o == nil || len(o.Terms) == 0 {
		return 0
	}
	changed := 0
	for i := range records {
		name := normalizePhrase(records[i].Name)
		if name == "" {
			continue
		}
		bestLen := 0
		bestType := ""
		for _, term := range o.Terms {
			phrase := normalizePhrase(term.Phrase)
			if phrase == "" || len(phrase) <= bestLen {
				continue
			}
			if strings.Contains(name, phrase) {
				bestLen = len(phrase)
				bestType = term.CostType
			}
		}
		if bestType != "" && records[i].CostType != bestType {
			records[i].CostType = bestType
			changed++
		}
	}
	return changed
}
