package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
)

const (
	cacheKeyPrefix = "sla:policy:"
	cacheTTL       = 5 * time.Minute
	// noMatchSentinel caches a negative resolution so untracked tenants do
	// not hammer Postgres on every sweep.
	noMatchSentinel = "-"
)

// Resolver finds the best-matching active policy for a ticket's
// (tenant, category, priority) tuple. Read path is cached in Redis;
// the cache is invalidated on policy publish/deactivate events.
type Resolver struct {
	policies repository.PolicyRepository
	cache    *redis.Client
	logger   *zap.Logger
}

// NewResolver constructs the resolver. cache may be nil; resolution then
// always reads Postgres.
func NewResolver(policies repository.PolicyRepository, cache *redis.Client, logger *zap.Logger) *Resolver {
	return &Resolver{policies: policies, cache: cache, logger: logger}
}

// Resolve returns the applicable policy, or nil when the tenant has no match
// ("no SLA" is a valid outcome, not an error).
func (r *Resolver) Resolve(ctx context.Context, tenantID, category string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	key := cacheKey(tenantID, category, priority)
	if cached, ok := r.fromCache(ctx, key); ok {
		return cached, nil
	}

	policies, err := r.policies.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list policies for tenant %s: %w", tenantID, err)
	}
	match := BestMatch(policies, category, priority)
	r.toCache(ctx, key, match)
	return match, nil
}

// Invalidate drops every cached resolution for the tenant. Called on policy
// publish and deactivate notifications.
func (r *Resolver) Invalidate(ctx context.Context, tenantID string) {
	if r.cache == nil {
		return
	}
	pattern := cacheKeyPrefix + tenantID + ":*"
	var cursor uint64
	for {
		keys, next, err := r.cache.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			r.logger.Warn("policy cache scan failed", zap.String("tenant_id", tenantID), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := r.cache.Del(ctx, keys...).Err(); err != nil {
				r.logger.Warn("policy cache invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	r.logger.Debug("policy cache invalidated", zap.String("tenant_id", tenantID))
}

// BestMatch picks the most specific active match: exact (category, priority)
// beats (category, *), which beats (*, priority), which beats the tenant
// default. Ties break by most recent activation.
func BestMatch(policies []domain.SLAPolicy, category string, priority domain.TicketPriority) *domain.SLAPolicy {
	var best *domain.SLAPolicy
	for i := range policies {
		candidate := &policies[i]
		if !candidate.Active || !candidate.Matches(category, priority) {
			continue
		}
		if best == nil ||
			candidate.Specificity() > best.Specificity() ||
			(candidate.Specificity() == best.Specificity() && candidate.ActivatedAt.After(best.ActivatedAt)) {
			best = candidate
		}
	}
	return best
}

func cacheKey(tenantID, category string, priority domain.TicketPriority) string {
	return cacheKeyPrefix + tenantID + ":" + category + ":" + string(priority)
}

func (r *Resolver) fromCache(ctx context.Context, key string) (*domain.SLAPolicy, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("policy cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if raw == noMatchSentinel {
		return nil, true
	}
	var policy domain.SLAPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		r.logger.Warn("policy cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &policy, true
}

func (r *Resolver) toCache(ctx context.Context, key string, policy *domain.SLAPolicy) {
	if r.cache == nil {
		return
	}
	value := noMatchSentinel
	if policy != nil {
		encoded, err := json.Marshal(policy)
		if err != nil {
			return
		}
		value = string(encoded)
	}
	if err := r.cache.Set(ctx, key, value, cacheTTL).Err(); err != nil {
		r.logger.Warn("policy cache write failed", zap.String("key", key), zap.Error(err))
	}
}
