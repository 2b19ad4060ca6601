// Package adapter implements the search-engine capability boundary
// (spec.md §4.2): a fixed registry of engine adapters, each translating a
// SearchQuery into a deadline-bounded, retried, circuit-breaker-protected
// HTTP call. Grounded on the teacher's ai/providers.BaseClient (HTTP
// client with timeout, exponential-backoff retry loop, consistent error
// handling by status code) generalized from an LLM completion client to a
// metasearch client.
package adapter

import (
	"context"
	"fmt"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
)

// SearchAdapter is the capability every search engine integration exposes.
type SearchAdapter interface {
	// Search runs query against the adapter's engine, returning at most
	// maxResults results ranked by the engine's own relevance ordering.
	Search(ctx context.Context, query domain.SearchQuery, maxResults int) ([]domain.SearchResult, error)
	// EngineType identifies which Engine this adapter serves.
	EngineType() domain.Engine
}

// Registry maps an Engine to the adapter that serves it. Fixed at startup
// (spec.md §9: "Non-goal: dynamic adapter plugin loading").
type Registry struct {
	adapters map[domain.Engine]SearchAdapter
}

// NewRegistry builds a Registry from the given adapters, keyed by their own
// EngineType().
func NewRegistry(adapters ...SearchAdapter) *Registry {
	r := &Registry{adapters: make(map[domain.Engine]SearchAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.EngineType()] = a
	}
	return r
}

// Get returns the adapter for engine, or a wrapped core.ErrUnsupportedEngine.
func (r *Registry) Get(engine domain.Engine) (SearchAdapter, error) {
	a, ok := r.adapters[engine]
	if !ok {
		return nil, fmt.Errorf("adapter: engine %q: %w", engine, core.ErrUnsupportedEngine)
	}
	return a, nil
}
