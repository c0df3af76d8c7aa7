package memory_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/plugin/store/memory"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/registry/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, context.Background(), memory.New())
}

func TestMemoryStore_RegisteredAsPlugin(t *testing.T) {
	_ = memory.ForceImport
	loader, err := registrystore.Select("memory")
	require.NoError(t, err)
	s, err := loader(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
}
