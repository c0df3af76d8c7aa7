// Package infinispan provides a cache plugin that connects to Infinispan
// via its RESP (Redis protocol) endpoint, reusing the Redis cache implementation.
package infinispan

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/cache/redis"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "infinispan",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.InfinispanHost == "" {
		return nil, fmt.Errorf("infinispan cache: CHAT_SERVICE_INFINISPAN_HOST is required")
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.InfinispanStartupTimeout)
	defer cancel()
	return redis.LoadFromOptions(timeoutCtx, Options(cfg.InfinispanHost, cfg.InfinispanUsername, cfg.InfinispanPassword), cfg.CacheProfileTTL)
}

// Options returns go-redis options for an Infinispan RESP endpoint. The endpoint
// does not answer the RESP3 HELLO handshake, so Protocol is pinned to 2.
func Options(host, username, password string) *goredis.Options {
	return &goredis.Options{
		Addr:     host,
		Username: username,
		Password: password,
		Protocol: 2,
	}
}
