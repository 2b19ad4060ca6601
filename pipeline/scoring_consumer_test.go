package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/config"
	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
	"github.com/kevinhagel/northstar-funding/orchestrator"
	"github.com/kevinhagel/northstar-funding/registry"
	"github.com/kevinhagel/northstar-funding/repository"
	"github.com/kevinhagel/northstar-funding/scoring"
	"github.com/kevinhagel/northstar-funding/streamlog"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		AdmissionThreshold:      "0.60",
		WeightFundingKeywords:   "0.30",
		WeightDomainCredibility: "0.25",
		WeightGeographic:        "0.25",
		WeightOrganizationType:  "0.20",
	}
}

func newTestScoringConsumer(t *testing.T) (*ScoringConsumer, *orchestrator.SessionOrchestrator, repository.CandidateRepository) {
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
	reg := registry.New(client, core.NoOpLogger{})
	candidates := repository.NewInMemoryCandidateRepository()
	orch := orchestrator.New(core.NoOpLogger{})

	scorer, err := scoring.NewConfidenceScorer(testScoringConfig(), scoring.DefaultLexicon())
	require.NoError(t, err)

	consumer := NewScoringConsumer(log, scorer, reg, candidates, orch, 0, core.NoOpLogger{})
	return consumer, orch, candidates
}

func validatedEvent(sessionID, requestID, domainName, url, title, description string) domain.SearchResultsValidatedEvent {
	return domain.SearchResultsValidatedEvent{
		RequestID: requestID, SessionID: sessionID, Engine: domain.EngineSearXNG,
		ValidResults: []domain.ValidatedResult{{
			URL: url, Title: title, Description: description, DomainName: domainName,
			Rank: 1, DiscoveredAt: time.Now(),
		}},
		Stats:     domain.ValidationStats{TotalIn: 1, RegisteredNew: 1},
		Timestamp: time.Now(),
	}
}

func TestScoringConsumer_AdmitsHighQualityResultAsCandidate(t *testing.T) {
	consumer, orch, candidates := newTestScoringConsumer(t)
	ctx := context.Background()

	orch.StartSession("s1", 1, time.Now())
	event := validatedEvent("s1", "r1", "grants.university.edu",
		"https://grants.university.edu/funding",
		"Federal Research Grant Foundation",
		"United States government funding and fellowship awards for nonprofit organizations")

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	saved, err := candidates.FindBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, domain.CandidatePendingCrawl, saved[0].Status)

	session, ok := orch.Session("s1")
	require.False(t, ok) // session is exhausted (outstanding=1) and finished
	_ = session
}

func TestScoringConsumer_RedeliveredEventDoesNotDuplicateCandidate(t *testing.T) {
	consumer, orch, candidates := newTestScoringConsumer(t)
	ctx := context.Background()

	// outstanding=3 so the session stays open across both deliveries.
	orch.StartSession("s3", 3, time.Now())
	event := validatedEvent("s3", "r1", "grants.university.edu",
		"https://grants.university.edu/funding",
		"Federal Research Grant Foundation",
		"United States government funding and fellowship awards for nonprofit organizations")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	saved, err := candidates.FindBySession(ctx, "s3")
	require.NoError(t, err)
	require.Len(t, saved, 1, "redelivering the same validated result must not create a second candidate")

	session, ok := orch.Session("s3")
	require.True(t, ok)
	require.Equal(t, 1, session.CandidatesFound, "a redelivered result must not be double-counted")
}

func TestScoringConsumer_DropsLowQualityResultWithoutCandidate(t *testing.T) {
	consumer, _, candidates := newTestScoringConsumer(t)
	ctx := context.Background()

	event := validatedEvent("s2", "r1", "blog.example.net",
		"https://blog.example.net/post",
		"Random Blog Post",
		"Just some unrelated content about cooking")

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, consumer.Handle(ctx, streamlog.Message{Payload: payload}))

	saved, err := candidates.FindBySession(ctx, "s2")
	require.NoError(t, err)
	require.Empty(t, saved)
}

func TestScoringConsumer_MalformedPayloadIsAckedNotErrored(t *testing.T) {
	consumer, _, _ := newTestScoringConsumer(t)
	err := consumer.Handle(context.Background(), streamlog.Message{Payload: []byte("not json")})
	require.NoError(t, err)
}
