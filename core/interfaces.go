package core

import (
	"context"
	"sync"
)

// Logger is the structured logging capability every package in this module
// depends on. Fields travel as a map so call sites stay readable regardless
// of the sink (stdout JSON in production, a no-op in unit tests).
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// Context-aware variants carry the active trace/span for correlation.
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a package stamp its own component name onto every
// line it writes while sharing one underlying sink and configuration.
//
// Component naming convention used throughout this repo:
//   - "pipeline/request-consumer"
//   - "pipeline/validation-consumer"
//   - "pipeline/scoring-consumer"
//   - "pipeline/error-handler"
//   - "blacklist/cache"
//   - "registry/domain"
//   - "adapter/<engine>"
//   - "trigger"
//   - "orchestrator/session"
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional tracing/metrics capability. Packages take it as
// an injected dependency rather than reaching for a global tracer.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one traced operation.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// CircuitBreaker protects a blocking call — an adapter HTTP request, a
// registry write, a cache-miss fallback to the registry — from cascading
// failure when the downstream dependency is unhealthy.
type CircuitBreaker interface {
	// Execute runs fn with circuit-breaker protection. Returns
	// ErrCircuitBreakerOpen immediately if the circuit is open.
	Execute(ctx context.Context, fn func() error) error
	// CanExecute reports whether the breaker would currently allow a call.
	CanExecute() bool
	RecordSuccess()
	RecordFailure()
	// State returns "closed", "open", or "half-open".
	State() string
	Reset()
}

// HealthStatus for a component or dependency.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// MetricsRegistry lets a metrics sink register itself with core without the
// two packages importing one another. Nothing in this module currently calls
// SetMetricsRegistry or reads the registry back; the cache, registry and
// circuit breaker do not emit through it.
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
}

var (
	globalMetricsRegistry MetricsRegistry
	metricsRegistryMu     sync.RWMutex
)

// SetMetricsRegistry installs registry as the global MetricsRegistry.
func SetMetricsRegistry(registry MetricsRegistry) {
	metricsRegistryMu.Lock()
	defer metricsRegistryMu.Unlock()
	globalMetricsRegistry = registry
}

// GetGlobalMetricsRegistry returns the registered MetricsRegistry, or nil if
// none has been set. Callers must nil-check.
func GetGlobalMetricsRegistry() MetricsRegistry {
	metricsRegistryMu.RLock()
	defer metricsRegistryMu.RUnlock()
	return globalMetricsRegistry
}

// NoOpLogger discards everything. The zero value is ready to use.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WithComponent(string) Logger                                      { return NoOpLogger{} }

// NoOpTelemetry is the default telemetry implementation until one is wired.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}
func (NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan is the default span implementation until telemetry is wired.
type NoOpSpan struct{}

func (NoOpSpan) End()                                       {}
func (NoOpSpan) SetAttribute(key string, value interface{}) {}
func (NoOpSpan) RecordError(err error)                      {}
