package pgstore_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/plugin/image/pgstore"
	"github.com/chirino/chat-service/internal/registry/image/imagetest"
	"github.com/chirino/chat-service/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestPgImageStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	db, err := gorm.Open(postgres.Open(testpg.StartPostgres(t)), &gorm.Config{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, pgstore.AutoMigrate(ctx, db))

	imagetest.Run(t, ctx, pgstore.New(db, t.TempDir()))
}
