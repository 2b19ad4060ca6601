package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// publishWorkflowError emits a batch-level failure to the error stream
// (spec.md §7: "Batch-level failures... produce a WorkflowError on the
// error stream"). originalPayload is the raw bytes of the message that
// failed, retained verbatim so the error handler can re-publish it on
// retry.
func publishWorkflowError(
	ctx context.Context,
	log *streamlog.Log,
	logger core.Logger,
	sessionID, requestID string,
	stage domain.PipelineStage,
	errorType, message string,
	originalPayload []byte,
) {
	event := domain.WorkflowErrorEvent{
		RequestID:       requestID,
		SessionID:       sessionID,
		Stage:           stage,
		ErrorType:       errorType,
		ErrorMessage:    message,
		RetryCount:      0,
		OriginalPayload: originalPayload,
		Timestamp:       time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorWithContext(ctx, "failed to marshal workflow error event", map[string]interface{}{
			"sessionId": sessionID, "requestId": requestID, "error": err.Error(),
		})
		return
	}

	partitionKey := sessionID + "|" + requestID
	if _, err := log.Publish(ctx, StreamWorkflowErrors, partitionKey, payload); err != nil {
		logger.ErrorWithContext(ctx, "failed to publish workflow error event", map[string]interface{}{
			"sessionId": sessionID, "requestId": requestID, "error": err.Error(),
		})
	}
}
