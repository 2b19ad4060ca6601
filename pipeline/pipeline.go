package pipeline

import (
	"context"
	"fmt"

	"github.com/kevinhagel/northstar-funding/adapter"
	"github.com/kevinhagel/northstar-funding/blacklist"
	"github.com/kevinhagel/northstar-funding/config"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/registry"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/scoring"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

// Pipeline owns the four stage worker pools (spec.md §5) and starts/stops
// them together.
type Pipeline struct {
	pools  []*WorkerPool
	logger core.Logger
}

// Deps bundles every collaborator a pipeline stage needs. main wires these
// up once at startup and passes the bundle here rather than threading a
// dozen constructor parameters through.
type Deps struct {
	Log        *streamlog.Log
	Adapters   *adapter.Registry
	Cache      *blacklist.Cache
	Registry   *registry.RedisRegistry
	Scorer     *scoring.ConfidenceScorer
	Candidates repository.CandidateRepository
	Errors     repository.ErrorRepository
	Orch       *orchestrator.SessionOrchestrator
	Logger     core.Logger
}

// New builds a Pipeline with one WorkerPool per stage, sized per
// cfg.Streams (spec.md §5's per-stage concurrency defaults).
func New(cfg config.StreamConfig, scoringCfg config.ScoringConfig, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	requestConsumer := NewRequestConsumer(deps.Log, deps.Adapters, cfg.SearchDeadline, 20, logger)
	validationConsumer := NewValidationConsumer(deps.Log, deps.Cache, deps.Registry, deps.Orch, logger)
	scoringConsumer := NewScoringConsumer(deps.Log, deps.Scorer, deps.Registry, deps.Candidates, deps.Orch, scoringCfg.ConsecutiveLowQualityCap, logger)
	errorHandler := NewErrorHandler(deps.Log, deps.Errors, deps.Orch, logger)

	pools := []*WorkerPool{
		NewWorkerPool(deps.Log, Config{
			Stream: StreamSearchRequests, Group: GroupRequestConsumer, Workers: cfg.RequestConsumerWorkers,
			ReclaimMinIdle: cfg.ReclaimMinIdle,
		}, requestConsumer.Handle, logger),
		NewWorkerPool(deps.Log, Config{
			Stream: StreamSearchResultsRaw, Group: GroupValidationConsumer, Workers: cfg.ValidationConsumerWorkers,
			ReclaimMinIdle: cfg.ReclaimMinIdle,
		}, validationConsumer.Handle, logger),
		NewWorkerPool(deps.Log, Config{
			Stream: StreamSearchResultsValidated, Group: GroupScoringConsumer, Workers: cfg.ScoringConsumerWorkers,
			ReclaimMinIdle: cfg.ReclaimMinIdle,
		}, scoringConsumer.Handle, logger),
		NewWorkerPool(deps.Log, Config{
			Stream: StreamWorkflowErrors, Group: GroupErrorHandler, Workers: cfg.ErrorHandlerWorkers,
			ReclaimMinIdle: cfg.ReclaimMinIdle,
		}, errorHandler.Handle, logger),
	}

	return &Pipeline{pools: pools, logger: logger}
}

// Start launches every stage's worker pool.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, pool := range p.pools {
		if err := pool.Start(ctx); err != nil {
			return fmt.Errorf("pipeline: start failed: %w", err)
		}
	}
	return nil
}

// Shutdown stops every stage's worker pool, draining in-flight messages up
// to ctx's deadline (spec.md §5).
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, pool := range p.pools {
		if err := pool.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
