package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevinhagel/northstar-funding/domain"
)

func TestFundingKeywordsScorer_CapsAtThreeHits(t *testing.T) {
	s := &fundingKeywordsScorer{keywords: []string{"grant", "funding", "award", "fellowship", "donation"}}
	result := domain.SearchResult{Title: "Grant Funding Award", Description: "fellowship donation program"}
	got := s.Score(result)
	assert.True(t, got.Equal(fractionCapped(5, 3, 5)))
}

func TestDomainCredibilityScorer_PrefersHighestTier(t *testing.T) {
	s := &domainCredibilityScorer{tlds: DefaultLexicon().CredibleTLDs}
	gov := s.Score(domain.SearchResult{URL: "https://grants.agency.gov"})
	com := s.Score(domain.SearchResult{URL: "https://shop.example.com"})
	assert.True(t, gov.GreaterThan(com))
}

func TestGeographicRelevanceScorer_MatchesAnyRegion(t *testing.T) {
	s := &geographicRelevanceScorer{regionTerms: DefaultLexicon().RegionTerms}
	hit := s.Score(domain.SearchResult{Description: "funding available across Canada"})
	miss := s.Score(domain.SearchResult{Description: "no geography mentioned here"})
	assert.True(t, hit.GreaterThan(miss))
}

func TestOrganizationTypeScorer_PrefersHighestWeightedTerm(t *testing.T) {
	s := &organizationTypeScorer{orgTerms: DefaultLexicon().OrgTypeTerms}
	gov := s.Score(domain.SearchResult{Description: "a government program"})
	corp := s.Score(domain.SearchResult{Description: "a private corporation"})
	assert.True(t, gov.GreaterThan(corp))
}

func TestHostOf_HandlesBareHostsAndURLs(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://example.com/path"))
	assert.Equal(t, "example.com", hostOf("https://Example.COM"))
}
