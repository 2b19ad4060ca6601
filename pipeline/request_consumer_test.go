package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/adapter"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

type stubAdapter struct {
	engine  domain.Engine
	results []domain.SearchResult
	err     error
}

func (s stubAdapter) EngineType() domain.Engine { return s.engine }
func (s stubAdapter) Search(ctx context.Context, query domain.SearchQuery, maxResults int) ([]domain.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func newTestRequestConsumer(t *testing.T, a adapter.SearchAdapter) (*RequestConsumer, *streamlog.Log) {
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
	registry := adapter.NewRegistry(a)
	return NewRequestConsumer(log, registry, time.Second, 10, core.NoOpLogger{}), log
}

func searchRequestEventPayload(t *testing.T, sessionID, requestID string, engine domain.Engine) []byte {
	t.Helper()
	event := domain.SearchRequestEvent{
		RequestID: requestID, SessionID: sessionID, QueryText: "environmental grants",
		Engine: engine, Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestRequestConsumer_PublishesRawResultsOnSuccess(t *testing.T) {
	a := stubAdapter{engine: domain.EngineSearXNG, results: []domain.SearchResult{
		{URL: "https://grants.gov/a", Title: "Grant A", Rank: 1, DiscoveredAt: time.Now()},
	}}
	consumer, log := newTestRequestConsumer(t, a)
	ctx := context.Background()

	payload := searchRequestEventPayload(t, "s1", "r1", domain.EngineSearXNG)
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	require.NoError(t, log.EnsureGroup(ctx, StreamSearchResultsRaw, "test-readers"))
	key := partitionKey("s1", "r1", string(domain.EngineSearXNG))
	msgs, err := log.ReadBatch(ctx, StreamSearchResultsRaw, "test-readers", "reader-1", log.PartitionFor(key), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var out domain.SearchResultsRawEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &out))
	require.Len(t, out.Results, 1)
	require.Equal(t, "https://grants.gov/a", out.Results[0].URL)
}

func TestRequestConsumer_EmitsWorkflowErrorOnAdapterFailure(t *testing.T) {
	a := stubAdapter{engine: domain.EngineSearXNG, err: core.ErrRequestFailed}
	consumer, log := newTestRequestConsumer(t, a)
	ctx := context.Background()

	payload := searchRequestEventPayload(t, "s2", "r1", domain.EngineSearXNG)
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	require.NoError(t, log.EnsureGroup(ctx, StreamWorkflowErrors, "test-readers"))
	key := "s2|r1"
	msgs, err := log.ReadBatch(ctx, StreamWorkflowErrors, "test-readers", "reader-1", log.PartitionFor(key), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var out domain.WorkflowErrorEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &out))
	require.Equal(t, ErrorAdapterHTTP5xx, out.ErrorType)
	require.Equal(t, domain.StageSearch, out.Stage)
}

func TestRequestConsumer_EmitsHTTP4xxWorkflowErrorOnRejectedRequest(t *testing.T) {
	a := stubAdapter{engine: domain.EngineSearXNG, err: core.ErrRequestRejected}
	consumer, log := newTestRequestConsumer(t, a)
	ctx := context.Background()

	payload := searchRequestEventPayload(t, "s4", "r1", domain.EngineSearXNG)
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	require.NoError(t, log.EnsureGroup(ctx, StreamWorkflowErrors, "test-readers"))
	key := "s4|r1"
	msgs, err := log.ReadBatch(ctx, StreamWorkflowErrors, "test-readers", "reader-1", log.PartitionFor(key), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var out domain.WorkflowErrorEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &out))
	require.Equal(t, ErrorAdapterHTTP4xx, out.ErrorType)
}

func TestRequestConsumer_EmitsWorkflowErrorOnUnsupportedEngine(t *testing.T) {
	a := stubAdapter{engine: domain.EngineSearXNG}
	consumer, log := newTestRequestConsumer(t, a)
	ctx := context.Background()

	payload := searchRequestEventPayload(t, "s3", "r1", domain.Engine("UNKNOWN"))
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	require.NoError(t, log.EnsureGroup(ctx, StreamWorkflowErrors, "test-readers"))
	key := "s3|r1"
	msgs, err := log.ReadBatch(ctx, StreamWorkflowErrors, "test-readers", "reader-1", log.PartitionFor(key), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var out domain.WorkflowErrorEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &out))
	require.Equal(t, ErrorAdapterUnsupportedEngine, out.ErrorType)
}

func TestRequestConsumer_MalformedPayloadIsAckedNotErrored(t *testing.T) {
	a := stubAdapter{engine: domain.EngineSearXNG}
	consumer, _ := newTestRequestConsumer(t, a)
	err := consumer.Handle(context.Background(), streamlog.Message{Payload: []byte("not json")})
	require.NoError(t, err)
}

func TestClassifyAdapterError_MapsKnownSentinels(t *testing.T) {
	require.Equal(t, ErrorStageTimeout, classifyAdapterError(context.DeadlineExceeded))
	require.Equal(t, ErrorAdapterUnsupportedEngine, classifyAdapterError(core.ErrUnsupportedEngine))
	require.Equal(t, ErrorAdapterHTTP4xx, classifyAdapterError(core.ErrRequestRejected))
	require.Equal(t, ErrorAdapterHTTP5xx, classifyAdapterError(core.ErrRequestFailed))
	require.Equal(t, ErrorAdapterNetwork, classifyAdapterError(errors.New("boom")))
}
