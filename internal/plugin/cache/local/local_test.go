package local

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/registry/cache/cachetest"
	"github.com/stretchr/testify/require"
)

func TestLocalCache(t *testing.T) {
	c, err := New(100, time.Minute)
	require.NoError(t, err)
	cachetest.Run(t, context.Background(), c)
}
