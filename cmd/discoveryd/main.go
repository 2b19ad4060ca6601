// Command discoveryd runs the funding-discovery pipeline: the Request
// Trigger's HTTP surface, the four stream-driven pipeline workers, and a
// health endpoint, wired from one config.Config.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kevinhagel/northstar-funding/adapter"
	"github.com/kevinhagel/northstar-funding/blacklist"
	"github.com/kevinhagel/northstar-funding/config"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/pipeline"
	"github.com/kevinhagel/northstar-funding/querygen"
	"github.com/kevinhagel/northstar-funding/registry"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/resilience"
	"github.com/kevinhagel/northstar-funding/scoring"
	"github.com/kevinhagel/northstar-funding/streamlog"
	"github.com/kevinhagel/northstar-funding/telemetry"
	"github.com/kevinhagel/northstar-funding/trigger"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "discoveryd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := core.NewProductionLogger(cfg.Logging.Level, cfg.Logging.Format)

	redisClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Redis.URL, Namespace: cfg.Redis.KeyNamespace, Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	provider, err := telemetry.NewProvider("northstar-funding", os.Getenv("NORTHSTAR_OTLP_ENDPOINT"))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	log := streamlog.NewLog(redisClient, cfg.Streams.PartitionCount, cfg.Streams.PipelineRetention, logger)
	domainRegistry := registry.New(redisClient, logger)
	cache := blacklist.New(cfg.Blacklist.MaxEntries, cfg.Blacklist.EntryTTL, redisClient, domainRegistry, logger)
	orch := orchestrator.New(logger)

	lexicon := scoring.DefaultLexicon()
	if cfg.Scoring.LexiconPath != "" {
		loaded, err := scoring.LoadLexicon(cfg.Scoring.LexiconPath)
		if err != nil {
			return fmt.Errorf("load scoring lexicon: %w", err)
		}
		lexicon = loaded
	}
	confidenceScorer, err := scoring.NewConfidenceScorer(cfg.Scoring, lexicon)
	if err != nil {
		return fmt.Errorf("init confidence scorer: %w", err)
	}

	adapterBreaker := resilience.NewCircuitBreaker(resilience.Config{
		Name: "searxng", FailureThreshold: cfg.Resilience.CircuitBreakerThreshold,
		Timeout: cfg.Resilience.CircuitBreakerTimeout, HalfOpenRequests: cfg.Resilience.CircuitBreakerHalfOpenRequests,
		Logger: logger,
	})
	searxngAdapter := adapter.NewSearXNGAdapter(adapter.SearXNGConfig{
		BaseURL: cfg.Adapter.SearXNGBaseURL, ConnectTimeout: cfg.Adapter.ConnectTimeout, TotalDeadline: cfg.Adapter.TotalDeadline,
		Retry: &resilience.RetryConfig{
			MaxAttempts: cfg.Adapter.RetryMaxAttempts, InitialDelay: cfg.Adapter.RetryInitialDelay,
			MaxDelay: cfg.Resilience.ErrorRetryMaxDelay, BackoffFactor: cfg.Adapter.RetryBackoffFactor, JitterPct: cfg.Adapter.RetryJitterPct,
		},
	}, adapterBreaker, logger)
	adapterRegistry := adapter.NewRegistry(searxngAdapter)

	candidateRepo := repository.NewInMemoryCandidateRepository()
	errorRepo := repository.NewInMemoryErrorRepository()

	pipe := pipeline.New(cfg.Streams, cfg.Scoring, pipeline.Deps{
		Log: log, Adapters: adapterRegistry, Cache: cache, Registry: domainRegistry,
		Scorer: confidenceScorer, Candidates: candidateRepo, Errors: errorRepo, Orch: orch, Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipe.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	requestTrigger := trigger.New(log, querygen.NewMock(3), orch, cfg.HTTP.TriggerDeadline, logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/discovery-requests", trigger.Handler(requestTrigger, logger))
	mux.Handle("/v1/discovery-requests/", trigger.Handler(requestTrigger, logger))
	mux.HandleFunc("/healthz", telemetry.HealthHandler(map[string]telemetry.Checker{
		"redis": func(ctx context.Context) error { return redisClient.HealthCheck(ctx) },
	}))

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: otelhttp.NewHandler(mux, "discoveryd"),
		ReadTimeout: cfg.HTTP.ReadTimeout, WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("discoveryd listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("discoveryd shutting down", nil)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", map[string]interface{}{"error": err.Error()})
	}
	if err := pipe.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown error", map[string]interface{}{"error": err.Error()})
	}
	return nil
}
