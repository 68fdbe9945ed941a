package cache

import (
	"context"
	"time"

	c "github.com/patrickmn/go-cache"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

// DefaultTTL keeps entries short-lived: edits made by another process only
// reach this one when its entry expires.
const DefaultTTL = 30 * time.Second

// CampaignLoader is the part of the campaign repository the cache reads through.
type CampaignLoader interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
}

// DefinitionCache keeps recently used campaigns so that a resume pass over many
// leads of the same campaign loads its definition once.
type DefinitionCache struct {
	cache  *c.Cache
	loader CampaignLoader
}

func NewDefinitionCache(loader CampaignLoader, ttl time.Duration) *DefinitionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DefinitionCache{
		cache:  c.New(ttl, 10*time.Minute),
		loader: loader,
	}
}

// Campaign returns the cached campaign or loads it. The status on a cached entry
// may be stale; callers that gate on status must re-read it.
func (ch *DefinitionCache) Campaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	if v, found := ch.cache.Get(campaignID); found {
		return v.(*model.Campaign), nil
	}
	campaign, err := ch.loader.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	ch.cache.SetDefault(campaignID, campaign)
	return campaign, nil
}

// Invalidate drops the entry after the definition or status changes.
func (ch *DefinitionCache) Invalidate(campaignID string) {
	ch.cache.Delete(campaignID)
}

func (ch *DefinitionCache) Len() int {
	return ch.cache.ItemCount()
}
