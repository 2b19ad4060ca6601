package domain

import "time"

// These are the four wire event schemas in spec.md §6. Field order in each
// struct matches the canonical order named there; streamlog marshals them
// as JSON for the stream payload.

// SearchRequestEvent is published once per generated query by the trigger,
// and consumed by the Request Consumer.
type SearchRequestEvent struct {
	RequestID     string    `json:"requestId"`
	SessionID     string    `json:"sessionId"`
	QueryText     string    `json:"queryText"`
	Engine        Engine    `json:"engine"`
	Category      string    `json:"category"`
	Region        string    `json:"region"`
	FundingType   string    `json:"fundingType"`
	RecipientType string    `json:"recipientType"`
	Timestamp     time.Time `json:"timestamp"`
}

// RawResult is one entry in a SearchResultsRawEvent's results array.
type RawResult struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Rank         int       `json:"rank"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// SearchResultsRawEvent is published by the Request Consumer, one per
// (requestId, engine) batch, and consumed by the Validation Consumer.
type SearchResultsRawEvent struct {
	RequestID       string      `json:"requestId"`
	SessionID       string      `json:"sessionId"`
	Engine          Engine      `json:"engine"`
	Results         []RawResult `json:"results"`
	TotalResults    int         `json:"totalResults"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	Timestamp       time.Time   `json:"timestamp"`
}

// ValidatedResult is a single surviving result after dedup/blacklist
// filtering, carried in a SearchResultsValidatedEvent.
type ValidatedResult struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DomainName   string    `json:"domainName"`
	Rank         int       `json:"rank"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// ValidationStats summarizes one batch's filtering outcome (spec.md §4.3
// step 5).
type ValidationStats struct {
	TotalIn            int `json:"totalIn"`
	DuplicatesDropped   int `json:"duplicatesDropped"`
	BlacklistedDropped  int `json:"blacklistedDropped"`
	RegisteredNew       int `json:"registeredNew"`
}

// SearchResultsValidatedEvent is published by the Validation Consumer and
// consumed by the Scoring Consumer.
type SearchResultsValidatedEvent struct {
	RequestID   string            `json:"requestId"`
	SessionID   string            `json:"sessionId"`
	Engine      Engine            `json:"engine"`
	ValidResults []ValidatedResult `json:"validResults"`
	Stats       ValidationStats   `json:"stats"`
	Timestamp   time.Time         `json:"timestamp"`
}

// WorkflowErrorEvent is published by any stage on batch-level failure and
// consumed solely by the Error Handler.
type WorkflowErrorEvent struct {
	RequestID       string        `json:"requestId"`
	SessionID       string        `json:"sessionId"`
	Stage           PipelineStage `json:"stage"`
	ErrorType       string        `json:"errorType"`
	ErrorMessage    string        `json:"errorMessage"`
	RetryCount      int           `json:"retryCount"`
	OriginalPayload []byte        `json:"originalPayload"`
	Timestamp       time.Time     `json:"timestamp"`
}
