package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

func newTestErrorHandler(t *testing.T) (*ErrorHandler, *streamlog.Log, repository.ErrorRepository, *orchestrator.SessionOrchestrator) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "ns",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	log := streamlog.NewLog(client, 4, time.Hour, core.NoOpLogger{})
	errs := repository.NewInMemoryErrorRepository()
	orch := orchestrator.New(core.NoOpLogger{})

	return NewErrorHandler(log, errs, orch, core.NoOpLogger{}), log, errs, orch
}

func workflowErrorEvent(sessionID, requestID, errorType string) domain.WorkflowErrorEvent {
	return domain.WorkflowErrorEvent{
		RequestID: requestID, SessionID: sessionID, Stage: domain.StageSearch,
		ErrorType: errorType, ErrorMessage: "boom", RetryCount: 0,
		OriginalPayload: []byte(`{"requestId":"` + requestID + `"}`), Timestamp: time.Now(),
	}
}

func TestErrorHandler_RetriesTransientErrorByRepublishing(t *testing.T) {
	h, log, errs, orch := newTestErrorHandler(t)
	ctx := context.Background()

	orch.StartSession("s1", 1, time.Now())

	event := workflowErrorEvent("s1", "r1", ErrorAdapterNetwork)
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, streamlog.Message{Payload: payload}))

	saved, err := errs.FindBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, saved, 1)

	stream := streamForStage(domain.StageSearch)
	require.NoError(t, log.EnsureGroup(ctx, stream, "test-readers"))
	key := "s1|r1"
	msgs, err := log.ReadBatch(ctx, stream, "test-readers", "reader-1", log.PartitionFor(key), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	session, ok := orch.Session("s1")
	require.True(t, ok) // session stays open while retrying
	require.Equal(t, 0, session.CandidatesFound)
}

func TestErrorHandler_DeadLettersPermanentError(t *testing.T) {
	h, _, _, orch := newTestErrorHandler(t)
	ctx := context.Background()

	orch.StartSession("s2", 1, time.Now())

	event := workflowErrorEvent("s2", "r1", ErrorAdapterUnsupportedEngine)
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, streamlog.Message{Payload: payload}))

	_, ok := orch.Session("s2")
	require.False(t, ok) // session closed once outstanding reached zero
}

func TestErrorHandler_DeadLettersAfterMaxRetries(t *testing.T) {
	h, _, _, orch := newTestErrorHandler(t)
	ctx := context.Background()

	orch.StartSession("s3", 1, time.Now())

	for i := 0; i < maxWorkflowErrorRetries; i++ {
		event := workflowErrorEvent("s3", "r1", ErrorAdapterNetwork)
		payload, err := json.Marshal(event)
		require.NoError(t, err)
		require.NoError(t, h.Handle(ctx, streamlog.Message{Payload: payload}))
		_, ok := orch.Session("s3")
		require.True(t, ok)
	}

	event := workflowErrorEvent("s3", "r1", ErrorAdapterNetwork)
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, streamlog.Message{Payload: payload}))

	_, ok := orch.Session("s3")
	require.False(t, ok)
}

func TestErrorHandler_MalformedPayloadIsAckedNotErrored(t *testing.T) {
	h, _, _, _ := newTestErrorHandler(t)
	err := h.Handle(context.Background(), streamlog.Message{Payload: []byte("not json")})
	require.NoError(t, err)
}
