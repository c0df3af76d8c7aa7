package noop

import (
	"context"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.ProfileCache, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// New returns a cache that stores nothing.
func New() cache.ProfileCache { return noopProfileCache{} }

type noopProfileCache struct{}

func (noopProfileCache) Available() bool { return false }
func (noopProfileCache) Get(context.Context, string) (*model.UserProfile, error) {
	return nil, nil
}
func (noopProfileCache) Set(context.Context, model.UserProfile, time.Duration) error { return nil }
func (noopProfileCache) Remove(context.Context, string) error                      { return nil }

var _ cache.ProfileCache = noopProfileCache{}
