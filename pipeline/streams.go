package pipeline

import "github.com/kevinhagel/northstar-funding/domain"

// Stream and consumer-group names (spec.md §6 — part of the wire contract).
const (
	StreamSearchRequests           = "search-requests"
	StreamSearchResultsRaw         = "search-results-raw"
	StreamSearchResultsValidated   = "search-results-validated"
	StreamWorkflowErrors           = "workflow-errors"

	GroupRequestConsumer    = "request-consumer"
	GroupValidationConsumer = "validation-consumer"
	GroupScoringConsumer    = "scoring-consumer"
	GroupErrorHandler       = "error-handler"
)

// Error taxonomy (spec.md §7). transientErrorTypes get retried by the error
// handler; everything else is dead-lettered immediately.
const (
	ErrorAdapterNetwork           = "adapter.network"
	ErrorAdapterHTTP5xx           = "adapter.http_5xx"
	ErrorAdapterHTTP4xx           = "adapter.http_4xx"
	ErrorAdapterParse             = "adapter.parse"
	ErrorAdapterUnsupportedEngine = "adapter.unsupported_engine"
	ErrorCacheUnavailable         = "cache.unavailable"
	ErrorRegistryContention       = "registry.contention"
	ErrorScoringInvalidInput      = "scoring.invalid_input"
	ErrorStageTimeout             = "stage.timeout"
	ErrorStageFatal               = "stage.fatal"
)

var transientErrorTypes = map[string]bool{
	ErrorAdapterNetwork:     true,
	ErrorAdapterHTTP5xx:     true,
	ErrorRegistryContention: true,
	ErrorStageTimeout:       true,
}

// isTransient reports whether errorType is retryable per spec.md §7/§4.7.
func isTransient(errorType string) bool { return transientErrorTypes[errorType] }

// streamForStage returns the stream a retried WorkflowError's original
// payload should be re-published to — the stream that stage itself
// consumes from, so the batch is reprocessed from the start of that stage.
func streamForStage(stage domain.PipelineStage) string {
	switch stage {
	case domain.StageRequest, domain.StageSearch:
		return StreamSearchRequests
	case domain.StageValidation:
		return StreamSearchResultsRaw
	case domain.StageScoring:
		return StreamSearchResultsValidated
	default:
		return StreamWorkflowErrors
	}
}
