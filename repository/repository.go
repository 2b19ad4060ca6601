// Package repository defines the persisted-state boundary (spec.md §6:
// domain(...), funding_source_candidate(...)) as interfaces only, per
// spec.md's non-goal on relational persistence — SPEC_FULL §7: "this core
// ships an in-memory reference implementation for tests and leaves SQL
// wiring to the integrator." Grounded on the teacher's in-memory map +
// sync.RWMutex idiom used throughout pkg/orchestration and core.MemoryStore.
package repository

import (
	"context"
	"sync"

	"github.com/kevinhagel/northstar-funding/domain"
)

// DomainRepository persists Domain records beyond the registry's own
// cache — an audit trail independent of the live registry state.
type DomainRepository interface {
	Save(ctx context.Context, d *domain.Domain) error
	FindByName(ctx context.Context, name string) (*domain.Domain, bool, error)
}

// CandidateRepository persists FundingSourceCandidate records created by
// the scoring consumer (spec.md §4.4).
type CandidateRepository interface {
	Save(ctx context.Context, c *domain.FundingSourceCandidate) error
	FindBySession(ctx context.Context, sessionID string) ([]*domain.FundingSourceCandidate, error)
	// FindBySessionAndURL looks up a previously saved candidate for
	// (sessionID, url), so callers can make Save idempotent under
	// redelivery (spec.md §8: "re-publishing the same SearchResultsRawEvent
	// does not produce duplicate candidates").
	FindBySessionAndURL(ctx context.Context, sessionID, url string) (*domain.FundingSourceCandidate, bool, error)
}

// ErrorRepository persists WorkflowError records (spec.md §4.7).
type ErrorRepository interface {
	Save(ctx context.Context, e *domain.WorkflowError) error
	FindBySession(ctx context.Context, sessionID string) ([]*domain.WorkflowError, error)
}

// InMemoryDomainRepository is the reference DomainRepository for tests.
type InMemoryDomainRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Domain
}

// NewInMemoryDomainRepository builds an empty InMemoryDomainRepository.
func NewInMemoryDomainRepository() *InMemoryDomainRepository {
	return &InMemoryDomainRepository{byID: make(map[string]*domain.Domain)}
}

func (r *InMemoryDomainRepository) Save(ctx context.Context, d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *d
	r.byID[d.DomainName] = &clone
	return nil
}

func (r *InMemoryDomainRepository) FindByName(ctx context.Context, name string) (*domain.Domain, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[name]
	if !ok {
		return nil, false, nil
	}
	clone := *d
	return &clone, true, nil
}

// InMemoryCandidateRepository is the reference CandidateRepository for
// tests. Save is idempotent by (sessionID, url): a second save for a
// pairing already on file overwrites the existing record in place rather
// than appending a duplicate.
type InMemoryCandidateRepository struct {
	mu        sync.RWMutex
	bySession map[string][]*domain.FundingSourceCandidate
	byKey     map[string]*domain.FundingSourceCandidate
}

func candidateKey(sessionID, url string) string { return sessionID + "|" + url }

// NewInMemoryCandidateRepository builds an empty InMemoryCandidateRepository.
func NewInMemoryCandidateRepository() *InMemoryCandidateRepository {
	return &InMemoryCandidateRepository{
		bySession: make(map[string][]*domain.FundingSourceCandidate),
		byKey:     make(map[string]*domain.FundingSourceCandidate),
	}
}

func (r *InMemoryCandidateRepository) Save(ctx context.Context, c *domain.FundingSourceCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := candidateKey(c.SessionID, c.URL)
	clone := *c
	if existing, ok := r.byKey[key]; ok {
		*existing = clone
		return nil
	}

	r.byKey[key] = &clone
	r.bySession[c.SessionID] = append(r.bySession[c.SessionID], &clone)
	return nil
}

func (r *InMemoryCandidateRepository) FindBySession(ctx context.Context, sessionID string) ([]*domain.FundingSourceCandidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.FundingSourceCandidate(nil), r.bySession[sessionID]...), nil
}

func (r *InMemoryCandidateRepository) FindBySessionAndURL(ctx context.Context, sessionID, url string) (*domain.FundingSourceCandidate, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[candidateKey(sessionID, url)]
	if !ok {
		return nil, false, nil
	}
	clone := *c
	return &clone, true, nil
}

// InMemoryErrorRepository is the reference ErrorRepository for tests.
type InMemoryErrorRepository struct {
	mu        sync.RWMutex
	bySession map[string][]*domain.WorkflowError
}

// NewInMemoryErrorRepository builds an empty InMemoryErrorRepository.
func NewInMemoryErrorRepository() *InMemoryErrorRepository {
	return &InMemoryErrorRepository{bySession: make(map[string][]*domain.WorkflowError)}
}

func (r *InMemoryErrorRepository) Save(ctx context.Context, e *domain.WorkflowError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *e
	r.bySession[e.SessionID] = append(r.bySession[e.SessionID], &clone)
	return nil
}

func (r *InMemoryErrorRepository) FindBySession(ctx context.Context, sessionID string) ([]*domain.WorkflowError, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.WorkflowError(nil), r.bySession[sessionID]...), nil
}
