package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/resilience"
)

type alwaysClosedBreaker struct{}

func (alwaysClosedBreaker) Execute(ctx context.Context, fn func() error) error { return fn() }
func (alwaysClosedBreaker) CanExecute() bool                                  { return true }
func (alwaysClosedBreaker) RecordSuccess()                                    {}
func (alwaysClosedBreaker) RecordFailure()                                    {}
func (alwaysClosedBreaker) State() string                                     { return "closed" }
func (alwaysClosedBreaker) Reset()                                            {}

func TestSearXNGAdapter_Search_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"url":"https://grants.gov/a","title":"Grant A","content":"funding"},
			{"url":"https://grants.gov/b","title":"Grant B","content":"more funding"}
		]}`))
	}))
	defer srv.Close()

	a := NewSearXNGAdapter(SearXNGConfig{
		BaseURL: srv.URL,
		Retry:   &resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, alwaysClosedBreaker{}, nil)

	results, err := a.Search(context.Background(), domain.SearchQuery{QueryText: "grants", Engine: domain.EngineSearXNG}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Grant A", results[0].Title)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, domain.EngineSearXNG, results[0].Engine)
}

func TestSearXNGAdapter_Search_RespectsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"url":"a","title":"A"},{"url":"b","title":"B"},{"url":"c","title":"C"}]}`))
	}))
	defer srv.Close()

	a := NewSearXNGAdapter(SearXNGConfig{
		BaseURL: srv.URL,
		Retry:   &resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, alwaysClosedBreaker{}, nil)

	results, err := a.Search(context.Background(), domain.SearchQuery{QueryText: "x", Engine: domain.EngineSearXNG}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSearXNGAdapter_Search_RejectsEmptyQuery(t *testing.T) {
	a := NewSearXNGAdapter(SearXNGConfig{BaseURL: "http://unused"}, alwaysClosedBreaker{}, nil)
	_, err := a.Search(context.Background(), domain.SearchQuery{}, 10)
	require.Error(t, err)
}

func TestSearXNGAdapter_Search_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewSearXNGAdapter(SearXNGConfig{
		BaseURL: srv.URL,
		Retry:   &resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, alwaysClosedBreaker{}, nil)

	_, err := a.Search(context.Background(), domain.SearchQuery{QueryText: "x", Engine: domain.EngineSearXNG}, 10)
	require.Error(t, err)
}

func TestSearXNGAdapter_Search_DoesNotRetry4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewSearXNGAdapter(SearXNGConfig{
		BaseURL: srv.URL,
		Retry:   &resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
	}, alwaysClosedBreaker{}, nil)

	_, err := a.Search(context.Background(), domain.SearchQuery{QueryText: "x", Engine: domain.EngineSearXNG}, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrRequestRejected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "a 4xx must fail on the first attempt, not be retried")
}

func TestRegistry_GetUnsupportedEngine(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(domain.Engine("UNKNOWN"))
	require.Error(t, err)
}
