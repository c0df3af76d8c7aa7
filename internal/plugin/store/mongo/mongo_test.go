package mongo_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	chatmongo "github.com/chirino/chat-service/internal/plugin/store/mongo"
	"github.com/chirino/chat-service/internal/registry/store/storetest"
	"github.com/chirino/chat-service/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	ctx := context.Background()

	client, err := chatmongo.Connect(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(cfg.DatabaseName)
	require.NoError(t, chatmongo.EnsureIndexes(ctx, db))
	// Running twice must not fail.
	require.NoError(t, chatmongo.EnsureIndexes(ctx, db))

	storetest.Run(t, ctx, chatmongo.New(db))
}
