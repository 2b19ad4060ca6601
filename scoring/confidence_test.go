package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/config"
	"github.com/kevinhagel/northstar-funding/domain"
)

func testConfig() config.ScoringConfig {
	return config.ScoringConfig{
		AdmissionThreshold:      "0.60",
		WeightFundingKeywords:   "0.30",
		WeightDomainCredibility: "0.25",
		WeightGeographic:        "0.25",
		WeightOrganizationType:  "0.20",
	}
}

func TestNewConfidenceScorer_RejectsBadWeightVector(t *testing.T) {
	cfg := testConfig()
	cfg.WeightGeographic = "0.10"
	_, err := NewConfidenceScorer(cfg, DefaultLexicon())
	require.Error(t, err)
}

func TestNewConfidenceScorer_RejectsUnparsableWeight(t *testing.T) {
	cfg := testConfig()
	cfg.WeightFundingKeywords = "not-a-number"
	_, err := NewConfidenceScorer(cfg, DefaultLexicon())
	require.Error(t, err)
}

func TestScore_HighQualityResultIsAdmitted(t *testing.T) {
	scorer, err := NewConfidenceScorer(testConfig(), DefaultLexicon())
	require.NoError(t, err)

	result := domain.SearchResult{
		URL:          "https://grants.university.edu/funding",
		Title:        "Federal Research Grant Foundation",
		Description:  "United States government funding and fellowship awards for nonprofit organizations",
		Engine:       domain.EngineSearXNG,
		DiscoveredAt: time.Now(),
	}

	r := scorer.Score(result)
	assert.True(t, r.Admitted, "expected admission, got score %s", r.Score)
	assert.True(t, r.Score.GreaterThanOrEqual(decimal.NewFromFloat(0.60)))
}

func TestScore_LowQualityResultIsNotAdmitted(t *testing.T) {
	scorer, err := NewConfidenceScorer(testConfig(), DefaultLexicon())
	require.NoError(t, err)

	result := domain.SearchResult{
		URL:         "https://randomshop.net/sale",
		Title:       "Buy shoes online",
		Description: "Discount sneakers and sandals",
		Engine:      domain.EngineSearXNG,
	}

	r := scorer.Score(result)
	assert.False(t, r.Admitted)
}

func TestScore_IsDeterministic(t *testing.T) {
	scorer, err := NewConfidenceScorer(testConfig(), DefaultLexicon())
	require.NoError(t, err)

	result := domain.SearchResult{
		URL:         "https://fund.example.org/grants",
		Title:       "Community Fund Grant",
		Description: "grant funding for canada charity work",
	}

	first := scorer.Score(result)
	for i := 0; i < 10; i++ {
		again := scorer.Score(result)
		assert.True(t, first.Score.Equal(again.Score))
	}
}

func TestScore_ProducesExactlyTwoFractionalDigits(t *testing.T) {
	scorer, err := NewConfidenceScorer(testConfig(), DefaultLexicon())
	require.NoError(t, err)

	result := domain.SearchResult{URL: "https://example.com", Title: "grant", Description: "grant funding"}
	r := scorer.Score(result)
	assert.Equal(t, int32(2), r.Score.Exponent()*-1)
}
