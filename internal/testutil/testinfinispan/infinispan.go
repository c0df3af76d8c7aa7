package testinfinispan

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "quay.io/infinispan/server:15.2"
	username = "chat"
	password = "chat-cache"
)

// Infinispan is a running server's RESP endpoint and credentials.
type Infinispan struct {
	Host     string // host:port
	Username string
	Password string
}

// StartInfinispan starts a throwaway Infinispan server and waits until its RESP
// connector answers PING. The container is removed when tb finishes.
func StartInfinispan(tb testing.TB) Infinispan {
	tb.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"11222/tcp"},
			Env:          map[string]string{"USER": username, "PASS": password},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("11222/tcp"),
				wait.ForLog("Started connector Resp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start infinispan %s: %v", image, err)
	}
	tb.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(stopCtx); err != nil {
			tb.Errorf("terminate infinispan: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "11222/tcp", "")
	if err != nil {
		tb.Fatalf("infinispan endpoint: %v", err)
	}
	ispn := Infinispan{Host: endpoint, Username: username, Password: password}

	readyCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := ispn.awaitRESP(readyCtx); err != nil {
		tb.Fatalf("infinispan RESP connector: %v", err)
	}
	return ispn
}

// awaitRESP pings until the connector accepts authenticated RESP2 clients. The
// connector can lag the log line announcing it.
func (i Infinispan) awaitRESP(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     i.Host,
		Username: i.Username,
		Password: i.Password,
		Protocol: 2, // no HELLO support
	})
	defer client.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		err := client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no PONG before deadline: %w", err)
		case <-ticker.C:
		}
	}
}
