package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kevinhagel/northstar-funding/config"
	"github.com/kevinhagel/northstar-funding/domain"
)

// SubScore names one of the four weighted components (spec.md §4.4 table).
type SubScore string

const (
	SubScoreFundingKeywords   SubScore = "fundingKeywords"
	SubScoreDomainCredibility SubScore = "domainCredibility"
	SubScoreGeographic        SubScore = "geographicRelevance"
	SubScoreOrganizationType  SubScore = "organizationType"
)

// weightedScorer pairs a Scorer with its configured weight.
type weightedScorer struct {
	name   SubScore
	scorer Scorer
	weight decimal.Decimal
}

// Result is one result's scoring outcome.
type Result struct {
	Score     decimal.Decimal
	Admitted  bool
	SubScores map[SubScore]decimal.Decimal
}

// ConfidenceScorer combines the four sub-scorers into the admission
// decision (spec.md §4.4).
type ConfidenceScorer struct {
	scorers   []weightedScorer
	threshold decimal.Decimal
}

// NewConfidenceScorer builds a ConfidenceScorer from cfg and lexicon. It
// verifies the weight vector sums to exactly 1.00, per spec.md §4.4:
// "implementations MUST verify this at construction time" — returned as an
// error so a misconfigured deployment fails fast at startup rather than
// scoring silently wrong.
func NewConfidenceScorer(cfg config.ScoringConfig, lexicon *Lexicon) (*ConfidenceScorer, error) {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}

	threshold, err := decimal.NewFromString(cfg.AdmissionThreshold)
	if err != nil {
		return nil, fmt.Errorf("scoring.admission_threshold %q: %w", cfg.AdmissionThreshold, err)
	}

	weights := []struct {
		name    SubScore
		raw     string
		scorer  Scorer
	}{
		{SubScoreFundingKeywords, cfg.WeightFundingKeywords, &fundingKeywordsScorer{keywords: lexicon.FundingKeywords}},
		{SubScoreDomainCredibility, cfg.WeightDomainCredibility, &domainCredibilityScorer{tlds: lexicon.CredibleTLDs}},
		{SubScoreGeographic, cfg.WeightGeographic, &geographicRelevanceScorer{regionTerms: lexicon.RegionTerms}},
		{SubScoreOrganizationType, cfg.WeightOrganizationType, &organizationTypeScorer{orgTerms: lexicon.OrgTypeTerms}},
	}

	sum := decimal.Zero
	scorers := make([]weightedScorer, 0, len(weights))
	for _, w := range weights {
		weight, err := decimal.NewFromString(w.raw)
		if err != nil {
			return nil, fmt.Errorf("scoring weight %s=%q: %w", w.name, w.raw, err)
		}
		sum = sum.Add(weight)
		scorers = append(scorers, weightedScorer{name: w.name, scorer: w.scorer, weight: weight})
	}

	if !sum.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("scoring weights sum to %s, must equal 1.00", sum.String())
	}

	return &ConfidenceScorer{scorers: scorers, threshold: threshold}, nil
}

// Score computes the weighted aggregate for result, rounded to two
// fractional digits, and reports whether it meets the admission threshold
// (decimal-compare, spec.md §4.4).
func (c *ConfidenceScorer) Score(result domain.SearchResult) Result {
	sub := make(map[SubScore]decimal.Decimal, len(c.scorers))
	total := decimal.Zero

	for _, ws := range c.scorers {
		s := ws.scorer.Score(result)
		sub[ws.name] = s
		total = total.Add(ws.weight.Mul(s))
	}

	rounded := total.Round(2)
	return Result{
		Score:     rounded,
		Admitted:  rounded.GreaterThanOrEqual(c.threshold),
		SubScores: sub,
	}
}
