// Package scoring implements the confidence scorer (spec.md §4.4): four
// independent, pure, deterministic rule-based sub-scorers combined into a
// single admission decision. No direct grounding file exists in the pack
// for "rule-based scoring with weighted sub-scores"; the nearest relative
// is the teacher's orchestration/tiered_capability_provider.go, whose
// shape — one small scorer per concern, a composite that aggregates them —
// is followed here with new business rules.
package scoring

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kevinhagel/northstar-funding/domain"
)

// Scorer computes one sub-score in [0.00, 1.00] for a search result. Every
// implementation MUST be pure: same input, same output, every run, with no
// network access (spec.md §4.4).
type Scorer interface {
	Score(result domain.SearchResult) decimal.Decimal
}

// fundingKeywordsScorer rates how much of the title+description reads like
// funding-related language, by fraction of configured keywords present.
type fundingKeywordsScorer struct {
	keywords []string
}

func (s *fundingKeywordsScorer) Score(result domain.SearchResult) decimal.Decimal {
	if len(s.keywords) == 0 {
		return decimal.Zero
	}
	text := strings.ToLower(result.Title + " " + result.Description)
	hits := 0
	for _, kw := range s.keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}
	return fractionCapped(hits, 3, len(s.keywords))
}

// domainCredibilityScorer rates the host's top-level domain against a tier
// table (e.g. .gov/.edu outrank .com).
type domainCredibilityScorer struct {
	tlds map[string]float64
}

func (s *domainCredibilityScorer) Score(result domain.SearchResult) decimal.Decimal {
	host := hostOf(result.URL)
	best := 0.0
	for tld, weight := range s.tlds {
		if strings.HasSuffix(host, tld) && weight > best {
			best = weight
		}
	}
	return decimal.NewFromFloat(best)
}

// geographicRelevanceScorer rates whether the title+description mentions a
// region matching any configured region's term list.
type geographicRelevanceScorer struct {
	regionTerms map[string][]string
}

func (s *geographicRelevanceScorer) Score(result domain.SearchResult) decimal.Decimal {
	text := strings.ToLower(result.Title + " " + result.Description)
	for _, terms := range s.regionTerms {
		for _, term := range terms {
			if strings.Contains(text, strings.ToLower(term)) {
				return decimal.NewFromFloat(1.0)
			}
		}
	}
	return decimal.Zero
}

// organizationTypeScorer rates the highest-weighted organization-type term
// found across title, description, and host.
type organizationTypeScorer struct {
	orgTerms map[string]float64
}

func (s *organizationTypeScorer) Score(result domain.SearchResult) decimal.Decimal {
	text := strings.ToLower(result.Title + " " + result.Description + " " + hostOf(result.URL))
	best := 0.0
	for term, weight := range s.orgTerms {
		if strings.Contains(text, strings.ToLower(term)) && weight > best {
			best = weight
		}
	}
	return decimal.NewFromFloat(best)
}

// fractionCapped returns min(hits, cap)/cap as a decimal, clamped so
// additional hits past cap don't push the sub-score above 1.00. n being 0
// already short-circuits before this is called.
func fractionCapped(hits, cap, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	if hits > cap {
		hits = cap
	}
	return decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(cap)))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}
