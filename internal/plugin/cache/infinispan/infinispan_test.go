package infinispan_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/plugin/cache/infinispan"
	"github.com/chirino/chat-service/internal/plugin/cache/redis"
	"github.com/chirino/chat-service/internal/registry/cache/cachetest"
	"github.com/chirino/chat-service/internal/testutil/testinfinispan"
	"github.com/stretchr/testify/require"
)

func TestInfinispanCache(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ispn := testinfinispan.StartInfinispan(t)

	ctx := context.Background()
	c, err := redis.LoadFromOptions(ctx, infinispan.Options(ispn.Host, ispn.Username, ispn.Password), time.Minute)
	require.NoError(t, err)
	cachetest.Run(t, ctx, c)
}
