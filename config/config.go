// Package config loads the funding-discovery service's configuration in
// three layers — compiled-in defaults, environment variables, then
// functional options — the same priority order and env-tag documentation
// style the rest of this codebase's ancestry uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable for the pipeline. Zero value is never valid;
// use DefaultConfig() then apply Options.
type Config struct {
	Namespace string `json:"namespace" env:"NORTHSTAR_NAMESPACE" default:"default"`

	HTTP       HTTPConfig       `json:"http"`
	Redis      RedisConfig      `json:"redis"`
	Streams    StreamConfig     `json:"streams"`
	Adapter    AdapterConfig    `json:"adapter"`
	Blacklist  BlacklistConfig  `json:"blacklist"`
	Scoring    ScoringConfig    `json:"scoring"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
}

// HTTPConfig configures the minimal trigger/status HTTP surface.
type HTTPConfig struct {
	Port            int           `json:"port" env:"NORTHSTAR_PORT" default:"8080"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"NORTHSTAR_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"NORTHSTAR_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"NORTHSTAR_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	TriggerDeadline time.Duration `json:"trigger_deadline" env:"NORTHSTAR_TRIGGER_DEADLINE" default:"30s"`
}

// RedisConfig is the shared connection used by the registry, blacklist
// cache, and event streams (each isolated by key namespace, not by DB,
// since Redis Streams need to share keyspace with consumer groups).
type RedisConfig struct {
	URL          string `json:"url" env:"NORTHSTAR_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	KeyNamespace string `json:"key_namespace" env:"NORTHSTAR_REDIS_NAMESPACE" default:"northstar"`
}

// StreamConfig configures the four durable streams and their consumer-side
// concurrency, matching SPEC_FULL §6's default per-stage caps.
type StreamConfig struct {
	PartitionCount           int           `json:"partition_count" env:"NORTHSTAR_STREAM_PARTITIONS" default:"8"`
	PipelineRetention        time.Duration `json:"pipeline_retention" env:"NORTHSTAR_STREAM_RETENTION" default:"168h"`
	ErrorRetention           time.Duration `json:"error_retention" env:"NORTHSTAR_ERROR_RETENTION" default:"720h"`
	ReclaimMinIdle           time.Duration `json:"reclaim_min_idle" env:"NORTHSTAR_STREAM_RECLAIM_MIN_IDLE" default:"30s"`
	RequestConsumerWorkers   int           `json:"request_consumer_workers" env:"NORTHSTAR_WORKERS_REQUEST" default:"4"`
	ValidationConsumerWorkers int          `json:"validation_consumer_workers" env:"NORTHSTAR_WORKERS_VALIDATION" default:"8"`
	ScoringConsumerWorkers   int           `json:"scoring_consumer_workers" env:"NORTHSTAR_WORKERS_SCORING" default:"8"`
	ErrorHandlerWorkers      int           `json:"error_handler_workers" env:"NORTHSTAR_WORKERS_ERROR" default:"2"`
	SearchDeadline           time.Duration `json:"search_deadline" env:"NORTHSTAR_DEADLINE_SEARCH" default:"10s"`
	ValidationDeadline       time.Duration `json:"validation_deadline" env:"NORTHSTAR_DEADLINE_VALIDATION" default:"2s"`
	ScoringDeadline          time.Duration `json:"scoring_deadline" env:"NORTHSTAR_DEADLINE_SCORING" default:"2s"`
}

// AdapterConfig configures the one concrete search engine adapter
// (SearXNG-style metasearch). Additional engines register under the same
// Registry at startup; SPEC_FULL ships one.
type AdapterConfig struct {
	SearXNGBaseURL    string        `json:"searxng_base_url" env:"NORTHSTAR_SEARXNG_URL" default:"http://localhost:8888"`
	ConnectTimeout    time.Duration `json:"connect_timeout" env:"NORTHSTAR_ADAPTER_CONNECT_TIMEOUT" default:"2s"`
	TotalDeadline     time.Duration `json:"total_deadline" env:"NORTHSTAR_ADAPTER_DEADLINE" default:"10s"`
	RetryMaxAttempts  int           `json:"retry_max_attempts" env:"NORTHSTAR_ADAPTER_RETRY_ATTEMPTS" default:"3"`
	RetryInitialDelay time.Duration `json:"retry_initial_delay" env:"NORTHSTAR_ADAPTER_RETRY_DELAY" default:"200ms"`
	RetryBackoffFactor float64      `json:"retry_backoff_factor" env:"NORTHSTAR_ADAPTER_RETRY_FACTOR" default:"2.0"`
	RetryJitterPct    float64       `json:"retry_jitter_pct" env:"NORTHSTAR_ADAPTER_RETRY_JITTER" default:"0.25"`
}

// BlacklistConfig configures the read-through domain blacklist cache.
type BlacklistConfig struct {
	EntryTTL    time.Duration `json:"entry_ttl" env:"NORTHSTAR_BLACKLIST_TTL" default:"24h"`
	MaxEntries  int           `json:"max_entries" env:"NORTHSTAR_BLACKLIST_MAX_ENTRIES" default:"10000"`
}

// ScoringConfig configures the confidence scorer's weights, threshold, and
// the path to its injected lexicon (keyword lists, TLD tiers, region terms,
// organization-type terms — SPEC_FULL §5.5).
type ScoringConfig struct {
	LexiconPath              string  `json:"lexicon_path" env:"NORTHSTAR_SCORING_LEXICON_PATH"`
	AdmissionThreshold       string  `json:"admission_threshold" env:"NORTHSTAR_SCORING_THRESHOLD" default:"0.60"`
	WeightFundingKeywords    string  `json:"weight_funding_keywords" env:"NORTHSTAR_WEIGHT_FUNDING_KEYWORDS" default:"0.30"`
	WeightDomainCredibility  string  `json:"weight_domain_credibility" env:"NORTHSTAR_WEIGHT_DOMAIN_CREDIBILITY" default:"0.25"`
	WeightGeographic         string  `json:"weight_geographic" env:"NORTHSTAR_WEIGHT_GEOGRAPHIC" default:"0.25"`
	WeightOrganizationType   string  `json:"weight_organization_type" env:"NORTHSTAR_WEIGHT_ORGANIZATION_TYPE" default:"0.20"`
	ConsecutiveLowQualityCap int     `json:"consecutive_low_quality_cap" env:"NORTHSTAR_LOW_QUALITY_CAP" default:"5"`
}

// ResilienceConfig configures the adapter's circuit breaker, and
// ErrorRetryMaxDelay also caps the adapter's retry delay. The registry and
// blacklist cache take no settings from it, and the error handler's retry
// count and backoff are fixed in code, not read from ErrorRetryMaxAttempts
// or ErrorRetryBaseDelay.
type ResilienceConfig struct {
	CircuitBreakerThreshold        int           `json:"circuit_breaker_threshold" env:"NORTHSTAR_CB_THRESHOLD" default:"5"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout" env:"NORTHSTAR_CB_TIMEOUT" default:"30s"`
	CircuitBreakerHalfOpenRequests int           `json:"circuit_breaker_half_open_requests" env:"NORTHSTAR_CB_HALF_OPEN" default:"3"`
	ErrorRetryMaxAttempts          int           `json:"error_retry_max_attempts" env:"NORTHSTAR_ERROR_RETRY_ATTEMPTS" default:"3"`
	ErrorRetryBaseDelay            time.Duration `json:"error_retry_base_delay" env:"NORTHSTAR_ERROR_RETRY_DELAY" default:"200ms"`
	ErrorRetryMaxDelay             time.Duration `json:"error_retry_max_delay" env:"NORTHSTAR_ERROR_RETRY_MAX_DELAY" default:"8s"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"NORTHSTAR_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"NORTHSTAR_LOG_FORMAT" default:"json"`
}

// Option mutates a Config during construction, applied after defaults and
// environment variables so explicit call sites always win.
type Option func(*Config) error

// DefaultConfig returns a Config with every field set to its documented
// default, identical to what LoadFromEnv would produce with no environment
// variables set.
func DefaultConfig() *Config {
	return &Config{
		Namespace: "default",
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			TriggerDeadline: 30 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379",
			KeyNamespace: "northstar",
		},
		Streams: StreamConfig{
			PartitionCount:            8,
			PipelineRetention:         168 * time.Hour,
			ErrorRetention:            720 * time.Hour,
			ReclaimMinIdle:            30 * time.Second,
			RequestConsumerWorkers:    4,
			ValidationConsumerWorkers: 8,
			ScoringConsumerWorkers:    8,
			ErrorHandlerWorkers:       2,
			SearchDeadline:            10 * time.Second,
			ValidationDeadline:        2 * time.Second,
			ScoringDeadline:           2 * time.Second,
		},
		Adapter: AdapterConfig{
			SearXNGBaseURL:     "http://localhost:8888",
			ConnectTimeout:     2 * time.Second,
			TotalDeadline:      10 * time.Second,
			RetryMaxAttempts:   3,
			RetryInitialDelay:  200 * time.Millisecond,
			RetryBackoffFactor: 2.0,
			RetryJitterPct:     0.25,
		},
		Blacklist: BlacklistConfig{
			EntryTTL:   24 * time.Hour,
			MaxEntries: 10000,
		},
		Scoring: ScoringConfig{
			AdmissionThreshold:       "0.60",
			WeightFundingKeywords:    "0.30",
			WeightDomainCredibility:  "0.25",
			WeightGeographic:         "0.25",
			WeightOrganizationType:   "0.20",
			ConsecutiveLowQualityCap: 5,
		},
		Resilience: ResilienceConfig{
			CircuitBreakerThreshold:        5,
			CircuitBreakerTimeout:          30 * time.Second,
			CircuitBreakerHalfOpenRequests: 3,
			ErrorRetryMaxAttempts:          3,
			ErrorRetryBaseDelay:            200 * time.Millisecond,
			ErrorRetryMaxDelay:             8 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromEnv overlays environment variables onto c. It reads only
// NORTHSTAR_NAMESPACE, NORTHSTAR_PORT, NORTHSTAR_REDIS_URL (or REDIS_URL),
// NORTHSTAR_REDIS_NAMESPACE, NORTHSTAR_SEARXNG_URL,
// NORTHSTAR_STREAM_PARTITIONS, NORTHSTAR_SCORING_LEXICON_PATH,
// NORTHSTAR_SCORING_THRESHOLD, NORTHSTAR_LOG_LEVEL and NORTHSTAR_LOG_FORMAT;
// the env tags on the other fields are not read and those fields keep their
// defaults. A malformed integer is reported as an error and leaves the
// default in place.
func (c *Config) LoadFromEnv() error {
	getEnv := func(names ...string) (string, bool) {
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := getEnv("NORTHSTAR_NAMESPACE"); ok {
		c.Namespace = v
	}
	if v, ok := getEnv("NORTHSTAR_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = n
		} else {
			return fmt.Errorf("NORTHSTAR_PORT=%q: %w", v, err)
		}
	}
	if v, ok := getEnv("NORTHSTAR_REDIS_URL", "REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := getEnv("NORTHSTAR_REDIS_NAMESPACE"); ok {
		c.Redis.KeyNamespace = v
	}
	if v, ok := getEnv("NORTHSTAR_SEARXNG_URL"); ok {
		c.Adapter.SearXNGBaseURL = v
	}
	if v, ok := getEnv("NORTHSTAR_STREAM_PARTITIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Streams.PartitionCount = n
		} else {
			return fmt.Errorf("NORTHSTAR_STREAM_PARTITIONS=%q: %w", v, err)
		}
	}
	if v, ok := getEnv("NORTHSTAR_SCORING_LEXICON_PATH"); ok {
		c.Scoring.LexiconPath = v
	}
	if v, ok := getEnv("NORTHSTAR_SCORING_THRESHOLD"); ok {
		c.Scoring.AdmissionThreshold = v
	}
	if v, ok := getEnv("NORTHSTAR_LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := getEnv("NORTHSTAR_LOG_FORMAT"); ok {
		c.Logging.Format = v
	}

	return nil
}

// Validate reports the first structural problem found, before the pipeline
// is wired: an empty Redis URL, a non-positive partition count, or an HTTP
// port outside 1..65535. It does not check the scoring weights;
// scoring.NewConfidenceScorer rejects a weight vector that does not sum to
// exactly 1.00.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url: %w", errMissingField)
	}
	if c.Streams.PartitionCount <= 0 {
		return fmt.Errorf("streams.partition_count must be positive: %w", errInvalidField)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %w", errInvalidField)
	}
	return nil
}

var (
	errMissingField = fmt.Errorf("missing required configuration")
	errInvalidField = fmt.Errorf("invalid configuration")
)

// NewConfig builds a Config from defaults, then environment variables, then
// opts, validating the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithRedisURL overrides the shared Redis connection string.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("redis url: %w", errInvalidField)
		}
		c.Redis.URL = url
		return nil
	}
}

// WithPort overrides the trigger/status HTTP port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("port %d: %w", port, errInvalidField)
		}
		c.HTTP.Port = port
		return nil
	}
}

// WithSearXNGBaseURL overrides the metasearch adapter's endpoint.
func WithSearXNGBaseURL(url string) Option {
	return func(c *Config) error {
		c.Adapter.SearXNGBaseURL = url
		return nil
	}
}

// WithScoringLexicon points the scorer at an injected lexicon file.
func WithScoringLexicon(path string) Option {
	return func(c *Config) error {
		c.Scoring.LexiconPath = path
		return nil
	}
}
