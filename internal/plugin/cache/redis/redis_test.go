package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/plugin/cache/redis"
	"github.com/chirino/chat-service/internal/registry/cache/cachetest"
	"github.com/chirino/chat-service/internal/testutil/testredis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	opts, err := goredis.ParseURL(testredis.StartRedis(t))
	require.NoError(t, err)

	ctx := context.Background()
	c, err := redis.LoadFromOptions(ctx, opts, time.Minute)
	require.NoError(t, err)
	cachetest.Run(t, ctx, c)
}
