package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/registry"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/scoring"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// ScoringConsumer is the third pipeline stage (spec.md §4.4): scores each
// validated result, admits candidates above threshold, and closes out
// exhausted sessions.
type ScoringConsumer struct {
	log               *streamlog.Log
	scorer            *scoring.ConfidenceScorer
	reg               *registry.RedisRegistry
	candidates        repository.CandidateRepository
	orch              *orchestrator.SessionOrchestrator
	consecutiveLowCap int
	logger            core.Logger
}

// NewScoringConsumer builds a ScoringConsumer. consecutiveLowCap is
// forwarded to registry.ApplyScore (config.ScoringConfig.ConsecutiveLowQualityCap).
func NewScoringConsumer(log *streamlog.Log, scorer *scoring.ConfidenceScorer, reg *registry.RedisRegistry, candidates repository.CandidateRepository, orch *orchestrator.SessionOrchestrator, consecutiveLowCap int, logger core.Logger) *ScoringConsumer {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("pipeline/scoring-consumer")
	}
	if consecutiveLowCap <= 0 {
		consecutiveLowCap = domain.ConsecutiveLowQualityCap
	}
	return &ScoringConsumer{
		log: log, scorer: scorer, reg: reg, candidates: candidates, orch: orch,
		consecutiveLowCap: consecutiveLowCap, logger: logger,
	}
}

// Handle processes one search-results-validated message (pipeline.Handler).
func (c *ScoringConsumer) Handle(ctx context.Context, msg streamlog.Message) error {
	var event domain.SearchResultsValidatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.ErrorWithContext(ctx, "malformed validated results event", map[string]interface{}{"error": err.Error()})
		return nil
	}

	for _, r := range event.ValidResults {
		result := domain.SearchResult{
			URL: r.URL, Title: r.Title, Description: r.Description, Engine: event.Engine,
			Rank: r.Rank, DiscoveredAt: r.DiscoveredAt, SessionID: event.SessionID, RequestID: event.RequestID,
		}

		score := c.scorer.Score(result)

		if err := c.reg.ApplyScore(ctx, r.DomainName, score.Score, score.Admitted, c.consecutiveLowCap, time.Now()); err != nil {
			c.emitError(ctx, event, ErrorRegistryContention, err.Error(), msg.Payload)
			return err // leave unacked: registry.contention retries in-process per spec.md §7
		}

		if session, ok := c.orch.Session(event.SessionID); ok {
			session.RecordScore(score.Score)
		}

		if score.Admitted {
			_, found, err := c.candidates.FindBySessionAndURL(ctx, event.SessionID, r.URL)
			if err != nil {
				c.logger.ErrorWithContext(ctx, "candidate idempotency lookup failed", map[string]interface{}{
					"domain": r.DomainName, "error": err.Error(),
				})
				continue
			}
			if found {
				// Re-delivery of an already-admitted result (spec.md §8):
				// the candidate already exists for this (sessionId, url);
				// do not create a second one or double-count it.
				continue
			}

			candidate := &domain.FundingSourceCandidate{
				CandidateID:     uuid.NewString(),
				DomainID:        r.DomainName,
				URL:             r.URL,
				Title:           r.Title,
				Description:     r.Description,
				Engine:          event.Engine,
				ConfidenceScore: score.Score,
				Status:          domain.CandidatePendingCrawl,
				SessionID:       event.SessionID,
				DiscoveredAt:    r.DiscoveredAt,
			}
			if err := c.candidates.Save(ctx, candidate); err != nil {
				c.logger.ErrorWithContext(ctx, "failed to persist candidate", map[string]interface{}{
					"domain": r.DomainName, "error": err.Error(),
				})
				continue
			}
			if session, ok := c.orch.Session(event.SessionID); ok {
				session.CandidatesFound++
			}
		}
	}

	if session, ok := c.orch.Session(event.SessionID); ok {
		session.DuplicatesDetected += event.Stats.DuplicatesDropped
	}

	if _, exhausted := c.orch.DecrementOutstanding(event.SessionID); exhausted {
		c.orch.FinishSession(event.SessionID, time.Now())
	}

	return nil
}

func (c *ScoringConsumer) emitError(ctx context.Context, event domain.SearchResultsValidatedEvent, errorType, message string, payload []byte) {
	publishWorkflowError(ctx, c.log, c.logger, event.SessionID, event.RequestID, domain.StageScoring, errorType, message, payload)
}
