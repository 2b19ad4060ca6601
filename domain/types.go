// Package domain holds the entities and wire event schemas that travel
// through the pipeline (spec.md §3, §6). Nothing in this package reaches
// out to Redis, HTTP, or any other I/O boundary — it is pure data plus the
// domain state machine's transition rules.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Engine identifies an external search provider reachable through a
// SearchAdapter.
type Engine string

const (
	EngineSearXNG Engine = "SEARXNG"
)

// SessionStatus is the terminal/non-terminal state of a DiscoverySession.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "RUNNING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionPartial   SessionStatus = "PARTIAL"
)

// IsTerminal reports whether the status is COMPLETED, FAILED, or PARTIAL.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionPartial
}

// DomainStatus is a node in the domain state machine (spec.md §4.3).
type DomainStatus string

const (
	DomainDiscovered          DomainStatus = "DISCOVERED"
	DomainProcessedHighQuality DomainStatus = "PROCESSED_HIGH_QUALITY"
	DomainProcessedLowQuality  DomainStatus = "PROCESSED_LOW_QUALITY"
	DomainBlacklisted          DomainStatus = "BLACKLISTED"
	DomainFailed               DomainStatus = "FAILED"
)

// CandidateStatus tracks a FundingSourceCandidate after creation. This core
// only ever writes PendingCrawl; later values are advanced by downstream
// collaborators outside this core's scope.
type CandidateStatus string

const (
	CandidatePendingCrawl CandidateStatus = "PENDING_CRAWL"
)

// PipelineStage names one of the four stages for WorkflowError routing and
// retry re-publication.
type PipelineStage string

const (
	StageRequest    PipelineStage = "REQUEST"
	StageSearch     PipelineStage = "SEARCH"
	StageValidation PipelineStage = "VALIDATION"
	StageScoring    PipelineStage = "SCORING"
)

// ExecutionRequest is the immutable input to a discovery run (spec.md §3,
// §4.1). Field enumerations (Category, FundingType, RecipientType) are
// closed sets per the source spec but the source does not freeze their
// member lists (§9 open question) — validation here checks non-empty rather
// than a hardcoded vocabulary, leaving the concrete lexicon to configuration.
type ExecutionRequest struct {
	RequestID     string
	Category      string
	Region        string // ISO 3166-1 alpha-2
	FundingType   string
	RecipientType string
	Engine        Engine
	CreatedAt     time.Time
}

// Validate checks the closed-set-shaped fields are present and Region looks
// like an ISO 3166-1 alpha-2 code. It does not validate against a concrete
// vocabulary (see type doc).
func (r ExecutionRequest) Validate() error {
	switch {
	case r.Category == "":
		return fieldError("category", "must not be empty")
	case len(r.Region) != 2:
		return fieldError("region", "must be ISO 3166-1 alpha-2")
	case r.FundingType == "":
		return fieldError("fundingType", "must not be empty")
	case r.RecipientType == "":
		return fieldError("recipientType", "must not be empty")
	case r.Engine == "":
		return fieldError("engine", "must not be empty")
	}
	return nil
}

// DiscoverySession is the unit of work spawned by one trigger call
// (spec.md §3, §4.6).
type DiscoverySession struct {
	SessionID              string
	StartedAt              time.Time
	Status                 SessionStatus
	CandidatesFound        int
	DuplicatesDetected     int
	AverageConfidenceScore decimal.Decimal
	scoredCount            int // internal: denominator for the running mean
}

// RecordScore folds a newly computed score into the running mean
// (spec.md §4.4: "contribute the score to the session's running mean").
func (s *DiscoverySession) RecordScore(score decimal.Decimal) {
	s.scoredCount++
	if s.scoredCount == 1 {
		s.AverageConfidenceScore = score
		return
	}
	n := decimal.NewFromInt(int64(s.scoredCount))
	total := s.AverageConfidenceScore.Mul(decimal.NewFromInt(int64(s.scoredCount - 1))).Add(score)
	s.AverageConfidenceScore = total.Div(n).Round(2)
}

// SearchQuery is an ephemeral unit materialized into a SearchRequestEvent
// (spec.md §3).
type SearchQuery struct {
	QueryText string
	Engine    Engine
	SessionID string
}

// Validate reports whether the query text is usable.
func (q SearchQuery) Validate() error {
	if q.QueryText == "" {
		return fieldError("queryText", "must not be empty")
	}
	return nil
}

// SearchResult is the DTO that traverses the pipeline between stages
// (spec.md §3). It is never persisted directly.
type SearchResult struct {
	URL          string
	Title        string
	Description  string
	Engine       Engine
	Rank         int
	DiscoveredAt time.Time
	SessionID    string
	RequestID    string
}

// Domain is the authoritative per-host quality record owned by the
// registry (spec.md §3, §4.3).
type Domain struct {
	DomainName          string
	Status              DomainStatus
	DiscoveredAt        time.Time
	LastProcessedAt     time.Time
	BestConfidenceScore decimal.Decimal
	HighQualityCount    int
	LowQualityCount     int
	BlacklistReason     string
	RetryAfter          time.Time
	ConsecutiveLowCount int // internal: drives the DISCOVERED -> PROCESSED_LOW_QUALITY transition
	ConsecutiveErrCount int // internal: drives the Any -> FAILED transition
}

// FundingSourceCandidate is a persisted, scored result above the admission
// threshold (spec.md §3, §4.4). This core never mutates a candidate after
// creation.
type FundingSourceCandidate struct {
	CandidateID     string
	DomainID        string
	URL             string
	Title           string
	Description     string
	Engine          Engine
	ConfidenceScore decimal.Decimal
	Status          CandidateStatus
	SessionID       string
	DiscoveredAt    time.Time
}

// WorkflowError is an append-only record of a batch-level failure
// (spec.md §3, §7).
type WorkflowError struct {
	RequestID       string
	SessionID       string
	Stage           PipelineStage
	ErrorType       string
	Message         string
	RetryCount      int
	Timestamp       time.Time
	OriginalPayload []byte // opaque; re-published verbatim on retry
}

type validationError struct {
	field, reason string
}

func (e *validationError) Error() string { return e.field + ": " + e.reason }

func fieldError(field, reason string) error { return &validationError{field: field, reason: reason} }
