// Package local is an in-process profile cache backed by ristretto. Each replica
// keeps its own copy, so invalidations are not shared between processes.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.ProfileCache, error) {
			cfg := config.FromContext(ctx)
			return New(cfg.CacheLocalMaxItems, cfg.CacheProfileTTL)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// New returns a cache holding at most maxItems profiles.
func New(maxItems int64, ttl time.Duration) (registrycache.ProfileCache, error) {
	if maxItems <= 0 {
		maxItems = 10_000
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	// Cost counts entries, not bytes.
	c, err := ristretto.NewCache(&ristretto.Config[string, model.UserProfile]{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &localProfileCache{cache: c, ttl: ttl}, nil
}

type localProfileCache struct {
	cache *ristretto.Cache[string, model.UserProfile]
	ttl   time.Duration
}

func (c *localProfileCache) Available() bool { return true }

func (c *localProfileCache) Get(_ context.Context, username string) (*model.UserProfile, error) {
	profile, ok := c.cache.Get(username)
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (c *localProfileCache) Set(_ context.Context, profile model.UserProfile, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(profile.Username, profile, 1, ttl)
	// Admission is asynchronous; wait so a read right after Set observes it.
	c.cache.Wait()
	return nil
}

func (c *localProfileCache) Remove(_ context.Context, username string) error {
	c.cache.Del(username)
	return nil
}

var _ registrycache.ProfileCache = (*localProfileCache)(nil)
