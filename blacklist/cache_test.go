package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/core"
)

type stubRegistry struct {
	blacklisted map[string]bool
	calls       int
	err         error
}

func (s *stubRegistry) IsBlacklisted(ctx context.Context, domainName string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.blacklisted[domainName], nil
}

func TestIsBlacklisted_FallsThroughToRegistryOnMiss(t *testing.T) {
	reg := &stubRegistry{blacklisted: map[string]bool{"gambling.example": true}}
	c := New(10, time.Hour, nil, reg, nil)

	v, err := c.IsBlacklisted(context.Background(), "gambling.example")
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 1, reg.calls)
}

func TestIsBlacklisted_CachesLocally(t *testing.T) {
	reg := &stubRegistry{blacklisted: map[string]bool{"example.org": false}}
	c := New(10, time.Hour, nil, reg, nil)

	_, err := c.IsBlacklisted(context.Background(), "example.org")
	require.NoError(t, err)
	_, err = c.IsBlacklisted(context.Background(), "example.org")
	require.NoError(t, err)

	assert.Equal(t, 1, reg.calls, "second lookup should be served from the local cache")
}

func TestIsBlacklisted_LRUEviction(t *testing.T) {
	reg := &stubRegistry{blacklisted: map[string]bool{}}
	c := New(2, time.Hour, nil, reg, nil)
	ctx := context.Background()

	_, _ = c.IsBlacklisted(ctx, "a.example")
	_, _ = c.IsBlacklisted(ctx, "b.example")
	_, _ = c.IsBlacklisted(ctx, "c.example")

	assert.Equal(t, 2, c.Len())
}

func TestIsBlacklisted_RegistryFailurePropagates(t *testing.T) {
	reg := &stubRegistry{err: errors.New("registry down")}
	c := New(10, time.Hour, nil, reg, nil)

	_, err := c.IsBlacklisted(context.Background(), "example.org")
	assert.Error(t, err)
}

func newTestRedisClient(t *testing.T) *core.RedisClient {
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
	return client
}

func TestIsBlacklisted_OrdinaryMissWarmsSharedCacheNotDegradedMode(t *testing.T) {
	redisClient := newTestRedisClient(t)
	reg := &stubRegistry{blacklisted: map[string]bool{"gambling.example": true}}

	// First process: miss on both layers, populates local + shared from the
	// registry.
	first := New(10, time.Hour, redisClient, reg, nil)
	v, err := first.IsBlacklisted(context.Background(), "gambling.example")
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 1, reg.calls)

	// Second process (fresh local LRU, same shared Redis): should be served
	// from the now-warmed shared cache, not fall through to the registry
	// again — proving the first lookup's miss was treated as an ordinary
	// miss, not routed down the degraded-mode skip-populate path.
	second := New(10, time.Hour, redisClient, reg, nil)
	v, err = second.IsBlacklisted(context.Background(), "gambling.example")
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 1, reg.calls, "shared cache should have been warmed by the first lookup")
}

func TestMarkBlacklisted_InvalidatesLocalEntry(t *testing.T) {
	reg := &stubRegistry{blacklisted: map[string]bool{"example.org": false}}
	c := New(10, time.Hour, nil, reg, nil)
	ctx := context.Background()

	_, _ = c.IsBlacklisted(ctx, "example.org")
	require.Equal(t, 1, c.Len())

	c.MarkBlacklisted(ctx, "example.org")
	assert.Equal(t, 0, c.Len())

	reg.blacklisted["example.org"] = true
	v, err := c.IsBlacklisted(ctx, "example.org")
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, 2, reg.calls)
}
