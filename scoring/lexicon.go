package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon is the injected keyword/term configuration the four sub-scorers
// read from (spec.md §4.4: "the specific keyword lists, top-level-domain
// tiers, region-term tables, and organization-type lexicon are injected
// configuration"). Loaded with yaml.v3, the way the teacher's capability
// manifests and routing tables are loaded.
type Lexicon struct {
	FundingKeywords []string            `yaml:"funding_keywords"`
	CredibleTLDs    map[string]float64  `yaml:"credible_tlds"`
	RegionTerms     map[string][]string `yaml:"region_terms"`
	OrgTypeTerms    map[string]float64  `yaml:"org_type_terms"`
}

// LoadLexicon reads a Lexicon from a YAML file at path.
func LoadLexicon(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	var l Lexicon
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return &l, nil
}

// DefaultLexicon is a small, reasonable-default vocabulary used when no
// lexicon path is configured — enough to exercise every sub-scorer without
// requiring an operator to author YAML before the pipeline runs at all.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		FundingKeywords: []string{
			"grant", "grants", "funding", "scholarship", "fellowship",
			"award", "endowment", "donation", "sponsorship", "fund",
		},
		CredibleTLDs: map[string]float64{
			".gov": 1.0,
			".edu": 0.9,
			".org": 0.7,
			".int": 0.8,
			".mil": 1.0,
			".com": 0.3,
			".net": 0.2,
		},
		RegionTerms: map[string][]string{
			"US": {"united states", "u.s.", "usa", "america", "federal"},
			"GB": {"united kingdom", "u.k.", "britain", "england", "scotland", "wales"},
			"EU": {"european union", "europe", "eu member"},
			"CA": {"canada", "canadian"},
			"AU": {"australia", "australian"},
			"IN": {"india", "indian"},
		},
		OrgTypeTerms: map[string]float64{
			"nonprofit":      0.9,
			"non-profit":     0.9,
			"foundation":     0.9,
			"charity":        0.8,
			"ngo":            0.8,
			"government":     1.0,
			"university":     0.85,
			"college":        0.8,
			"institute":      0.75,
			"corporation":    0.4,
			"private company": 0.3,
		},
	}
}
