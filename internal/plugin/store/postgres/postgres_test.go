package postgres_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	chatpg "github.com/chirino/chat-service/internal/plugin/store/postgres"
	"github.com/chirino/chat-service/internal/registry/store/storetest"
	"github.com/chirino/chat-service/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = testpg.StartPostgres(t)
	ctx := context.Background()

	pool, err := chatpg.Connect(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, chatpg.ApplySchema(ctx, pool))
	require.NoError(t, chatpg.ApplySchema(ctx, pool))

	storetest.Run(t, ctx, chatpg.New(pool))
}
