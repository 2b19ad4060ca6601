// Package querygen defines the external QueryGenerator boundary (spec.md
// §1: "out of scope; specified only at its interface — AI-based query
// generation, treated as a black-box QueryGenerator: input = structured
// request; output = list of query strings"). Grounded on the teacher's
// ai.AIClient shape (a single-method capability interface plus a request
// struct), generalized from free-text generation to a closed
// request-to-query-list contract.
package querygen

import (
	"context"
	"fmt"

	"github.com/kevinhagel/northstar-funding/domain"
)

// Generator turns an ExecutionRequest into the list of search queries the
// trigger will publish one SearchRequestEvent per (spec.md §4.1).
type Generator interface {
	Generate(ctx context.Context, request domain.ExecutionRequest) ([]string, error)
}

// Mock is a deterministic Generator for tests and local development: it
// expands the request's category and region into a small, fixed set of
// query strings rather than calling out to an LLM. FundingType and
// RecipientType do not affect the queries.
type Mock struct {
	// QueriesPerRequest bounds how many synthetic queries Generate returns.
	QueriesPerRequest int
}

// NewMock builds a Mock generator producing n queries per request (default
// 3 if n <= 0).
func NewMock(n int) *Mock {
	if n <= 0 {
		n = 3
	}
	return &Mock{QueriesPerRequest: n}
}

// Generate deterministically expands request into QueriesPerRequest query
// strings, so tests exercising the full pipeline don't depend on a live AI
// provider.
func (m *Mock) Generate(ctx context.Context, request domain.ExecutionRequest) ([]string, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("querygen: %w", err)
	}

	queries := make([]string, 0, m.QueriesPerRequest)
	templates := []string{
		"%s funding opportunities %s",
		"%s grants for %s organizations",
		"%s scholarship programs in %s",
	}
	for i := 0; i < m.QueriesPerRequest; i++ {
		tmpl := templates[i%len(templates)]
		queries = append(queries, fmt.Sprintf(tmpl, request.Category, request.Region))
	}
	return queries, nil
}
