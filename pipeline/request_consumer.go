package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/kevinhagel/northstar-funding/adapter"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// RequestConsumer is the first pipeline stage (spec.md §4.2): for each
// SearchRequestEvent, invokes the matching SearchAdapter and publishes the
// raw results batch.
type RequestConsumer struct {
	log        *streamlog.Log
	adapters   *adapter.Registry
	deadline   time.Duration
	maxResults int
	logger     core.Logger
}

// NewRequestConsumer builds a RequestConsumer.
func NewRequestConsumer(log *streamlog.Log, adapters *adapter.Registry, deadline time.Duration, maxResults int, logger core.Logger) *RequestConsumer {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("pipeline/request-consumer")
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &RequestConsumer{log: log, adapters: adapters, deadline: deadline, maxResults: maxResults, logger: logger}
}

// Handle processes one search-requests message (pipeline.Handler).
func (c *RequestConsumer) Handle(ctx context.Context, msg streamlog.Message) error {
	var event domain.SearchRequestEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.ErrorWithContext(ctx, "malformed search request event", map[string]interface{}{"error": err.Error()})
		return nil // malformed batch: no session/request to attribute a WorkflowError to
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	searchAdapter, err := c.adapters.Get(event.Engine)
	if err != nil {
		c.emitError(ctx, event, ErrorAdapterUnsupportedEngine, err.Error(), msg.Payload)
		return nil
	}

	start := time.Now()
	results, err := searchAdapter.Search(stageCtx, domain.SearchQuery{
		QueryText: event.QueryText, Engine: event.Engine, SessionID: event.SessionID,
	}, c.maxResults)
	elapsed := time.Since(start)

	if err != nil {
		c.emitError(ctx, event, classifyAdapterError(err), err.Error(), msg.Payload)
		return nil
	}

	raw := make([]domain.RawResult, 0, len(results))
	for _, r := range results {
		raw = append(raw, domain.RawResult{
			URL: r.URL, Title: r.Title, Description: r.Description, Rank: r.Rank, DiscoveredAt: r.DiscoveredAt,
		})
	}

	out := domain.SearchResultsRawEvent{
		RequestID: event.RequestID, SessionID: event.SessionID, Engine: event.Engine,
		Results: raw, TotalResults: len(raw), ExecutionTimeMs: elapsed.Milliseconds(), Timestamp: time.Now(),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		c.emitError(ctx, event, ErrorStageFatal, "marshal raw results: "+err.Error(), msg.Payload)
		return nil
	}

	key := partitionKey(event.SessionID, event.RequestID, string(event.Engine))
	if _, err := c.log.Publish(ctx, StreamSearchResultsRaw, key, payload); err != nil {
		return err // transport failure: leave unacked for redelivery
	}
	return nil
}

func (c *RequestConsumer) emitError(ctx context.Context, event domain.SearchRequestEvent, errorType, message string, payload []byte) {
	publishWorkflowError(ctx, c.log, c.logger, event.SessionID, event.RequestID, domain.StageSearch, errorType, message, payload)
}

func classifyAdapterError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorStageTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorAdapterNetwork
	}
	if errors.Is(err, core.ErrUnsupportedEngine) {
		return ErrorAdapterUnsupportedEngine
	}
	if errors.Is(err, core.ErrRequestRejected) {
		return ErrorAdapterHTTP4xx
	}
	if errors.Is(err, core.ErrRequestFailed) {
		return ErrorAdapterHTTP5xx
	}
	return ErrorAdapterNetwork
}

func partitionKey(sessionID, requestID, engine string) string {
	return sessionID + "|" + requestID + "|" + engine
}
