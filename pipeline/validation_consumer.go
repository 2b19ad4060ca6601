package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/kevinhagel/northstar-funding/blacklist"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/registry"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// ValidationConsumer is the second pipeline stage (spec.md §4.3): extracts
// and normalizes hosts, applies session-scoped dedup and the blacklist
// cache, updates the domain registry, and forwards surviving results.
type ValidationConsumer struct {
	log    *streamlog.Log
	cache  *blacklist.Cache
	reg    *registry.RedisRegistry
	orch   *orchestrator.SessionOrchestrator
	logger core.Logger
}

// NewValidationConsumer builds a ValidationConsumer.
func NewValidationConsumer(log *streamlog.Log, cache *blacklist.Cache, reg *registry.RedisRegistry, orch *orchestrator.SessionOrchestrator, logger core.Logger) *ValidationConsumer {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("pipeline/validation-consumer")
	}
	return &ValidationConsumer{log: log, cache: cache, reg: reg, orch: orch, logger: logger}
}

// Handle processes one search-results-raw message (pipeline.Handler).
func (c *ValidationConsumer) Handle(ctx context.Context, msg streamlog.Message) error {
	var event domain.SearchResultsRawEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.ErrorWithContext(ctx, "malformed raw results event", map[string]interface{}{"error": err.Error()})
		return nil
	}

	stats := domain.ValidationStats{TotalIn: len(event.Results)}
	valid := make([]domain.ValidatedResult, 0, len(event.Results))

	for _, r := range event.Results {
		host, ok := normalizeHost(r.URL)
		if !ok {
			// Step 1: parse failure drops the single result silently
			// (spec.md §4.3 step 1, §7 scoring.invalid_input-equivalent).
			continue
		}

		if c.orch.MarkSeenHost(event.SessionID, host) {
			stats.DuplicatesDropped++
			continue
		}

		blacklisted, err := c.cache.IsBlacklisted(ctx, host)
		if err != nil {
			c.logger.WarnWithContext(ctx, "blacklist check failed, treating as not blacklisted", map[string]interface{}{
				"host": host, "error": err.Error(),
			})
		}
		if blacklisted {
			stats.BlacklistedDropped++
			continue
		}

		_, created, err := c.reg.EnsureDiscovered(ctx, host, time.Now())
		if err != nil {
			c.emitError(ctx, event, ErrorRegistryContention, err.Error(), msg.Payload)
			return err // leave unacked: registry.contention retries in-process per spec.md §7
		}
		if created {
			stats.RegisteredNew++
		}

		valid = append(valid, domain.ValidatedResult{
			URL: r.URL, Title: r.Title, Description: r.Description,
			DomainName: host, Rank: r.Rank, DiscoveredAt: r.DiscoveredAt,
		})
	}

	out := domain.SearchResultsValidatedEvent{
		RequestID: event.RequestID, SessionID: event.SessionID, Engine: event.Engine,
		ValidResults: valid, Stats: stats, Timestamp: time.Now(),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		c.emitError(ctx, event, ErrorStageFatal, "marshal validated results: "+err.Error(), msg.Payload)
		return nil
	}

	key := partitionKey(event.SessionID, event.RequestID, string(event.Engine))
	if _, err := c.log.Publish(ctx, StreamSearchResultsValidated, key, payload); err != nil {
		return err
	}
	return nil
}

func (c *ValidationConsumer) emitError(ctx context.Context, event domain.SearchResultsRawEvent, errorType, message string, payload []byte) {
	publishWorkflowError(ctx, c.log, c.logger, event.SessionID, event.RequestID, domain.StageValidation, errorType, message, payload)
}

// normalizeHost extracts and lowercases the host from rawURL (spec.md §4.3
// step 1). Returns ok=false if the URL cannot be parsed or has no host.
func normalizeHost(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}
