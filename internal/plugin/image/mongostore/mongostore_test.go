package mongostore_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/image/mongostore"
	chatmongo "github.com/chirino/chat-service/internal/plugin/store/mongo"
	"github.com/chirino/chat-service/internal/registry/image/imagetest"
	"github.com/chirino/chat-service/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
)

func TestMongoImageStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	cfg := config.DefaultConfig()
	cfg.DBURL = testmongo.StartMongo(t)
	ctx := context.Background()

	client, err := chatmongo.Connect(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	imagetest.Run(t, ctx, mongostore.New(client.Database(cfg.DatabaseName), t.TempDir()))
}
