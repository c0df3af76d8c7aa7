package testmongo

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const (
	image    = "mongo:8.0"
	username = "chat"
	password = "chat"
)

// StartMongo starts a throwaway MongoDB with a root user and returns an
// authenticated connection URI. The container is removed when tb finishes.
func StartMongo(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := mongodb.Run(ctx, image,
		mongodb.WithUsername(username),
		mongodb.WithPassword(password),
	)
	if err != nil {
		tb.Fatalf("start mongo %s: %v", image, err)
	}
	tb.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(stopCtx); err != nil {
			tb.Errorf("terminate mongo: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("mongo connection string: %v", err)
	}
	return uri
}
