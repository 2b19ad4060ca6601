package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/resilience"
)

// SearXNGConfig configures one SearXNG-style metasearch endpoint
// (spec.md §6 adapter wire format; SPEC_FULL §5.2).
type SearXNGConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	TotalDeadline  time.Duration
	Retry          *resilience.RetryConfig
}

// SearXNGAdapter is the one concrete SearchAdapter this core ships.
type SearXNGAdapter struct {
	baseURL string
	client  *http.Client
	retry   *resilience.RetryConfig
	breaker core.CircuitBreaker
	logger  core.Logger
}

// NewSearXNGAdapter builds a SearXNGAdapter. breaker protects the
// underlying HTTP call (spec.md §5: "suspension/blocking points... the
// search adapter's HTTP call").
func NewSearXNGAdapter(cfg SearXNGConfig, breaker core.CircuitBreaker, logger core.Logger) *SearXNGAdapter {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("adapter/searxng")
	}
	retry := cfg.Retry
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	totalDeadline := cfg.TotalDeadline
	if totalDeadline <= 0 {
		totalDeadline = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}

	return &SearXNGAdapter{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: totalDeadline, Transport: transport},
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}
}

// EngineType identifies this adapter as SEARXNG.
func (a *SearXNGAdapter) EngineType() domain.Engine { return domain.EngineSearXNG }

// searxngResponse models the subset of a SearXNG JSON response this adapter
// consumes (spec.md §6 adapter wire format).
type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search executes query against the configured SearXNG instance, retried
// and circuit-breaker-protected per spec.md §4.2.
func (a *SearXNGAdapter) Search(ctx context.Context, query domain.SearchQuery, maxResults int) ([]domain.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("adapter/searxng: %w", err)
	}

	var results []domain.SearchResult
	err := resilience.RetryWithCircuitBreaker(ctx, a.retry, a.breaker, func() error {
		fetched, err := a.fetch(ctx, query)
		if err != nil {
			return err
		}
		results = fetched
		return nil
	})
	if err != nil {
		a.logger.ErrorWithContext(ctx, "searxng search failed", map[string]interface{}{
			"query": query.QueryText, "error": err.Error(),
		})
		return nil, fmt.Errorf("adapter/searxng: %w", err)
	}

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (a *SearXNGAdapter) fetch(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error) {
	endpoint := a.baseURL + "/search?" + url.Values{
		"q":      {query.QueryText},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", core.ErrRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Terminal per spec.md §4.2: a 4xx is our mistake, not a transient
		// failure of the search engine — retrying it wastes attempts.
		return nil, resilience.Permanent(fmt.Errorf("searxng responded %d: %w", resp.StatusCode, core.ErrRequestRejected))
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("searxng responded %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var parsed searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	now := time.Now()
	results := make([]domain.SearchResult, 0, len(parsed.Results))
	for rank, r := range parsed.Results {
		results = append(results, domain.SearchResult{
			URL:          r.URL,
			Title:        r.Title,
			Description:  r.Content,
			Engine:       domain.EngineSearXNG,
			Rank:         rank + 1,
			DiscoveredAt: now,
			SessionID:    query.SessionID,
		})
	}
	return results, nil
}
