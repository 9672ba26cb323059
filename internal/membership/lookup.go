package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/repository"
)

// CachedLookup serves membership reads for the permission resolver through
// a short-lived TTL cache. The TTL bounds how long a revoked membership can
// keep authorizing, so it stays small.
type CachedLookup struct {
	repo  repository.MembershipRepository
	cache *cache.Cache
}

func NewCachedLookup(repo repository.MembershipRepository, ttl, cleanupInterval time.Duration) *CachedLookup {
	return &CachedLookup{
		repo:  repo,
		cache: cache.New(ttl, cleanupInterval),
	}
}

func (l *CachedLookup) FindByUser(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error) {
	key := userID.String()
	if cached, ok := l.cache.Get(key); ok {
		return cached.([]*model.OrganizationMembership), nil
	}

	memberships, err := l.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	l.cache.Set(key, memberships, cache.DefaultExpiration)
	return memberships, nil
}

// Invalidate drops a user's cached memberships. Called on every membership
// write so grants and revocations take effect immediately for the writer's
// own node.
func (l *CachedLookup) Invalidate(userID uuid.UUID) {
	l.cache.Delete(userID.String())
}
