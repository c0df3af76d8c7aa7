// Package cachetest checks the ProfileCache contract shared by cache plugins.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/model"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises miss, set, overwrite, remove and expiry against c.
func Run(t *testing.T, ctx context.Context, c registrycache.ProfileCache) {
	require.True(t, c.Available())

	got, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got, "empty cache must miss")

	alice := model.UserProfile{Username: "alice", FirstName: "Alice", LastName: "Smith", ProfilePictureID: "img-1"}
	require.NoError(t, c.Set(ctx, alice, 0))
	got, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice, *got)

	alice.LastName = "Jones"
	require.NoError(t, c.Set(ctx, alice, 0))
	got, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jones", got.LastName)

	require.NoError(t, c.Remove(ctx, "alice"))
	got, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Removing a missing key is not an error.
	require.NoError(t, c.Remove(ctx, "nobody"))

	bob := model.UserProfile{Username: "bob", FirstName: "Bob", LastName: "Brown"}
	require.NoError(t, c.Set(ctx, bob, time.Second))
	require.Eventually(t, func() bool {
		got, err := c.Get(ctx, "bob")
		return err == nil && got == nil
	}, 10*time.Second, 100*time.Millisecond, "entry must expire after its ttl")
}
