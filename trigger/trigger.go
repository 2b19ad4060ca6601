// Package trigger implements the Request Trigger (spec.md §4.1): the sole
// producer of the search-requests stream. It validates an ExecutionRequest,
// allocates its requestId/sessionId, expands it into queries via the
// external QueryGenerator, and publishes one SearchRequestEvent per query.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/pipeline"
	"github.com/kevinhagel/northstar-funding/querygen"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// Outcome is the synchronous result of one Submit call (spec.md §4.1:
// "Returns (requestId, sessionId, queriesEmitted)").
type Outcome struct {
	RequestID      string
	SessionID      string
	QueriesEmitted int
}

// Trigger is the Request Trigger.
type Trigger struct {
	log       *streamlog.Log
	generator querygen.Generator
	orch      *orchestrator.SessionOrchestrator
	deadline  time.Duration
	logger    core.Logger
}

// New builds a Trigger. deadline bounds the whole Submit call (spec.md
// §4.1's implicit request/response budget); a non-positive deadline falls
// back to 30s, the default of config.HTTPConfig.TriggerDeadline.
func New(log *streamlog.Log, generator querygen.Generator, orch *orchestrator.SessionOrchestrator, deadline time.Duration, logger core.Logger) *Trigger {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("trigger/request-trigger")
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Trigger{log: log, generator: generator, orch: orch, deadline: deadline, logger: logger}
}

// Submit runs one discovery request to completion synchronously (spec.md
// §4.1): validate, allocate IDs, generate queries, publish one
// SearchRequestEvent per query.
func (t *Trigger) Submit(ctx context.Context, request domain.ExecutionRequest) (Outcome, error) {
	if err := request.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("trigger: invalid request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.deadline)
	defer cancel()

	requestID := uuid.NewString()
	sessionID := uuid.NewString()
	request.RequestID = requestID

	queries, err := t.generator.Generate(ctx, request)
	if err != nil {
		// spec.md §4.1: "the trigger fails synchronously (no events
		// published) and records no session."
		return Outcome{}, fmt.Errorf("trigger: query generation failed: %w", err)
	}
	if len(queries) == 0 {
		return Outcome{}, fmt.Errorf("trigger: query generator produced no queries")
	}

	now := time.Now()
	t.orch.StartSession(sessionID, len(queries), now)

	published := 0
	for _, queryText := range queries {
		event := domain.SearchRequestEvent{
			RequestID: requestID, SessionID: sessionID, QueryText: queryText, Engine: request.Engine,
			Category: request.Category, Region: request.Region, FundingType: request.FundingType,
			RecipientType: request.RecipientType, Timestamp: now,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			t.logger.ErrorWithContext(ctx, "failed to marshal search request event", map[string]interface{}{"error": err.Error()})
			t.emitUnpublishedError(ctx, event, payload)
			continue
		}

		key := event.SessionID + "|" + event.RequestID + "|" + string(event.Engine)
		if _, err := t.log.Publish(ctx, pipeline.StreamSearchRequests, key, payload); err != nil {
			t.logger.ErrorWithContext(ctx, "failed to publish search request event", map[string]interface{}{
				"sessionId": sessionID, "requestId": requestID, "error": err.Error(),
			})
			t.emitUnpublishedError(ctx, event, payload)
			continue
		}
		published++
	}

	if published == 0 {
		// spec.md §4.1: "the session is marked FAILED only if zero events
		// were published." The async WorkflowErrors already emitted above
		// will eventually dead-letter too, but the caller needs the
		// terminal status now, not after a retry round trip.
		t.orch.FinishSession(sessionID, time.Now())
	}

	return Outcome{RequestID: requestID, SessionID: sessionID, QueriesEmitted: published}, nil
}

// emitUnpublishedError records a batch-level failure for a query whose
// event never reached the stream, so it flows through the same
// retry/dead-letter path as every other stage failure (spec.md §4.1,
// §4.7).
func (t *Trigger) emitUnpublishedError(ctx context.Context, event domain.SearchRequestEvent, originalPayload []byte) {
	t.orch.RecordTerminalError(event.SessionID)

	errEvent := domain.WorkflowErrorEvent{
		RequestID: event.RequestID, SessionID: event.SessionID, Stage: domain.StageRequest,
		ErrorType: pipeline.ErrorStageFatal, ErrorMessage: "failed to publish search request event",
		OriginalPayload: originalPayload, Timestamp: time.Now(),
	}
	payload, err := json.Marshal(errEvent)
	if err != nil {
		return
	}
	key := event.SessionID + "|" + event.RequestID
	if _, err := t.log.Publish(ctx, pipeline.StreamWorkflowErrors, key, payload); err != nil {
		t.logger.ErrorWithContext(ctx, "failed to publish workflow error for unpublished request", map[string]interface{}{
			"sessionId": event.SessionID, "requestId": event.RequestID, "error": err.Error(),
		})
	}
}
