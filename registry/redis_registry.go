// Package registry implements the authoritative Domain Registry
// (spec.md §4.3/§4.4), grounded on the teacher's core.RedisRegistry
// (namespaced JSON-per-key records, structured logging on every operation)
// generalized from agent-service records to domain-quality records. Where
// the teacher's heartbeat/self-healing machinery doesn't apply to a
// passive data record, this package instead adds what a domain record
// does need: an optimistic-concurrency compare-and-swap on writes, per
// spec.md §5 ("concurrent updates to the same domain MUST be applied
// atomically... the monotonic invariant on bestConfidenceScore is a
// compare-and-swap"), using Redis WATCH/MULTI/EXEC the way the teacher
// uses TxPipeline for its own atomic index writes.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
)

// maxContentionRetries bounds the optimistic-concurrency retry loop before
// a write is reported as registry.contention (spec.md §7).
const maxContentionRetries = 5

// RedisRegistry is the Redis-backed DomainRegistry implementation.
type RedisRegistry struct {
	client *core.RedisClient
	logger core.Logger
}

// New builds a RedisRegistry over client.
func New(client *core.RedisClient, logger core.Logger) *RedisRegistry {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("registry/domain")
	}
	return &RedisRegistry{client: client, logger: logger}
}

func domainKey(name string) string { return "domain:" + name }

// Get returns the domain record, or core.ErrDomainNotFound if absent.
func (r *RedisRegistry) Get(ctx context.Context, domainName string) (*domain.Domain, error) {
	raw, err := r.client.Get(ctx, domainKey(domainName))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("domain %s: %w", domainName, core.ErrDomainNotFound)
		}
		return nil, fmt.Errorf("get domain %s: %w", domainName, core.ErrConnectionFailed)
	}
	var d domain.Domain
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unmarshal domain %s: %w", domainName, err)
	}
	return &d, nil
}

// IsBlacklisted reports whether domainName's registry record exists and is
// BLACKLISTED. An unseen domain is reported as not blacklisted rather than
// creating a record — it is not yet DISCOVERED until the validation
// consumer's registry-update step (spec.md §4.3 step 4, which runs only
// after the blacklist check in step 3).
func (r *RedisRegistry) IsBlacklisted(ctx context.Context, domainName string) (bool, error) {
	d, err := r.Get(ctx, domainName)
	if err != nil {
		if errors.Is(err, core.ErrDomainNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.Status == domain.DomainBlacklisted, nil
}

// EnsureDiscovered returns the domain's current record, creating it in the
// DISCOVERED state on first sighting (spec.md §4.3 step 4). The second
// return value reports whether the record was newly created.
func (r *RedisRegistry) EnsureDiscovered(ctx context.Context, domainName string, now time.Time) (*domain.Domain, bool, error) {
	var created bool
	var result *domain.Domain

	err := r.transact(ctx, domainName, func(current *domain.Domain) (*domain.Domain, error) {
		if current != nil {
			current.Touch(now)
			result = current
			return current, nil
		}
		created = true
		result = domain.NewDomain(domainName, now)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// ApplyScore folds a judged score into the domain record under optimistic
// concurrency, preserving the bestConfidenceScore compare-and-swap
// invariant even with concurrent scoring-consumer writers.
func (r *RedisRegistry) ApplyScore(ctx context.Context, domainName string, score decimal.Decimal, admitted bool, consecutiveLowCap int, now time.Time) error {
	return r.transact(ctx, domainName, func(current *domain.Domain) (*domain.Domain, error) {
		if current == nil {
			current = domain.NewDomain(domainName, now)
		}
		current.ApplyScore(score, admitted, consecutiveLowCap, now)
		return current, nil
	})
}

// Blacklist marks a domain terminal (spec.md §4.3: admin action).
func (r *RedisRegistry) Blacklist(ctx context.Context, domainName, reason string, now time.Time) error {
	return r.transact(ctx, domainName, func(current *domain.Domain) (*domain.Domain, error) {
		if current == nil {
			current = domain.NewDomain(domainName, now)
		}
		current.Blacklist(reason, now)
		return current, nil
	})
}

// RecordError increments the domain's consecutive-error counter, failing it
// after ceiling consecutive errors (spec.md §4.3: "Any status -> FAILED").
func (r *RedisRegistry) RecordError(ctx context.Context, domainName string, ceiling int, now time.Time) error {
	return r.transact(ctx, domainName, func(current *domain.Domain) (*domain.Domain, error) {
		if current == nil {
			current = domain.NewDomain(domainName, now)
		}
		current.RecordError(ceiling, now)
		return current, nil
	})
}

// transact runs an optimistic read-modify-write against one domain's key
// using Redis WATCH. mutate receives the current record (nil if absent) and
// returns the record to persist. Makes up to maxContentionRetries attempts,
// retrying on a WATCH conflict, before returning a wrapped
// registry.contention error.
func (r *RedisRegistry) transact(ctx context.Context, domainName string, mutate func(*domain.Domain) (*domain.Domain, error)) error {
	key := r.client.Key(domainKey(domainName))
	raw := r.client.Raw()

	for attempt := 0; attempt < maxContentionRetries; attempt++ {
		err := raw.Watch(ctx, func(tx *redis.Tx) error {
			var current *domain.Domain
			existing, getErr := tx.Get(ctx, key).Result()
			switch {
			case getErr == redis.Nil:
				current = nil
			case getErr != nil:
				return getErr
			default:
				var d domain.Domain
				if err := json.Unmarshal([]byte(existing), &d); err != nil {
					return err
				}
				current = &d
			}

			next, err := mutate(current)
			if err != nil {
				return err
			}

			data, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.WarnWithContext(ctx, "domain write contention, retrying", map[string]interface{}{
				"domain": domainName, "attempt": attempt + 1,
			})
			continue
		}
		return fmt.Errorf("domain transaction %s: %w", domainName, core.ErrConnectionFailed)
	}

	return fmt.Errorf("domain %s: %w", domainName, errRegistryContention)
}

var errRegistryContention = errors.New("registry.contention: exceeded optimistic-concurrency retries")
