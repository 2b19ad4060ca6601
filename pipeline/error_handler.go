package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/resilience"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// maxWorkflowErrorRetries bounds the in-process retry count before a
// transient error is dead-lettered (spec.md §4.7).
const maxWorkflowErrorRetries = 3

// ErrorHandler is the fourth pipeline stage (spec.md §4.7): persists every
// WorkflowError, retries transient failures with backoff, and dead-letters
// the rest.
//
// Stage events carry no retry-count field of their own (spec.md §6 wire
// schemas), so the handler keeps the authoritative count itself, keyed by
// the (session, request, stage, errorType) the failure recurs under —
// a WorkflowErrorEvent republished back into its stage is indistinguishable
// from a first attempt until it fails again and lands back here.
type ErrorHandler struct {
	log    *streamlog.Log
	errors repository.ErrorRepository
	orch   *orchestrator.SessionOrchestrator
	logger core.Logger

	mu      sync.Mutex
	retried map[string]int
}

// NewErrorHandler builds an ErrorHandler.
func NewErrorHandler(log *streamlog.Log, errors repository.ErrorRepository, orch *orchestrator.SessionOrchestrator, logger core.Logger) *ErrorHandler {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("pipeline/error-handler")
	}
	return &ErrorHandler{log: log, errors: errors, orch: orch, logger: logger, retried: make(map[string]int)}
}

func retryKey(event domain.WorkflowErrorEvent) string {
	return event.SessionID + "|" + event.RequestID + "|" + string(event.Stage) + "|" + event.ErrorType
}

// Handle processes one workflow-errors message (pipeline.Handler).
func (h *ErrorHandler) Handle(ctx context.Context, msg streamlog.Message) error {
	var event domain.WorkflowErrorEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.ErrorWithContext(ctx, "malformed workflow error event", map[string]interface{}{"error": err.Error()})
		return nil
	}

	key := retryKey(event)
	h.mu.Lock()
	attempt := h.retried[key]
	h.mu.Unlock()

	record := &domain.WorkflowError{
		RequestID: event.RequestID, SessionID: event.SessionID, Stage: event.Stage,
		ErrorType: event.ErrorType, Message: event.ErrorMessage, RetryCount: attempt,
		Timestamp: event.Timestamp, OriginalPayload: event.OriginalPayload,
	}
	if err := h.errors.Save(ctx, record); err != nil {
		h.logger.ErrorWithContext(ctx, "failed to persist workflow error", map[string]interface{}{"error": err.Error()})
	}

	if isTransient(event.ErrorType) && attempt < maxWorkflowErrorRetries {
		h.mu.Lock()
		h.retried[key] = attempt + 1
		h.mu.Unlock()
		h.retry(ctx, event, attempt)
		return nil
	}

	h.mu.Lock()
	delete(h.retried, key)
	h.mu.Unlock()

	h.logger.WarnWithContext(ctx, "dead-lettering workflow error", map[string]interface{}{
		"sessionId": event.SessionID, "requestId": event.RequestID,
		"stage": event.Stage, "errorType": event.ErrorType, "retryCount": attempt,
	})
	h.orch.RecordTerminalError(event.SessionID)
	if _, exhausted := h.orch.DecrementOutstanding(event.SessionID); exhausted {
		h.orch.FinishSession(event.SessionID, time.Now())
	}
	return nil
}

// retry sleeps per the error-handler backoff formula (spec.md §4.7:
// 200ms * 2^retryCount, capped at 8s) then re-publishes the original
// payload to the stream its stage consumes from, so the batch is
// reprocessed from the start of that stage.
func (h *ErrorHandler) retry(ctx context.Context, event domain.WorkflowErrorEvent, attempt int) {
	delay := resilience.ErrorHandlerDelay(attempt)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	stream := streamForStage(event.Stage)
	key := event.SessionID + "|" + event.RequestID
	if _, err := h.log.Publish(ctx, stream, key, event.OriginalPayload); err != nil {
		h.logger.ErrorWithContext(ctx, "failed to re-publish retried workflow error payload", map[string]interface{}{
			"sessionId": event.SessionID, "requestId": event.RequestID, "stream": stream, "error": err.Error(),
		})
	}
}
