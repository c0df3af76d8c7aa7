package cached_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/cache/local"
	"github.com/chirino/chat-service/internal/plugin/cache/noop"
	"github.com/chirino/chat-service/internal/plugin/profile/cached"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	profiles map[string]model.UserProfile
	gets     int
}

func (s *countingStore) AddProfile(_ context.Context, p model.UserProfile) error {
	s.profiles[p.Username] = p
	return nil
}

func (s *countingStore) GetProfile(_ context.Context, username string) (*model.UserProfile, error) {
	s.gets++
	p, ok := s.profiles[username]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "profile", ID: username}
	}
	return &p, nil
}

func (s *countingStore) UpdateProfile(_ context.Context, p model.UserProfile) error {
	s.profiles[p.Username] = p
	return nil
}

func (s *countingStore) DeleteProfile(_ context.Context, username string) error {
	delete(s.profiles, username)
	return nil
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{profiles: map[string]model.UserProfile{}}
	c, err := local.New(100, time.Minute)
	require.NoError(t, err)
	s := cached.Wrap(inner, c, time.Minute)

	require.NoError(t, s.AddProfile(ctx, model.UserProfile{Username: "alice", FirstName: "Alice", LastName: "Smith"}))

	for range 3 {
		got, err := s.GetProfile(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.FirstName)
	}
	assert.Equal(t, 1, inner.gets, "only the first read reaches the store")

	require.NoError(t, s.UpdateProfile(ctx, model.UserProfile{Username: "alice", FirstName: "Alicia", LastName: "Smith"}))
	got, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.FirstName)
	assert.Equal(t, 2, inner.gets)

	require.NoError(t, s.DeleteProfile(ctx, "alice"))
	_, err = s.GetProfile(ctx, "alice")
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestCachedStore_MissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{profiles: map[string]model.UserProfile{}}
	c, err := local.New(100, time.Minute)
	require.NoError(t, err)
	s := cached.Wrap(inner, c, time.Minute)

	_, err = s.GetProfile(ctx, "bob")
	require.Error(t, err)
	require.NoError(t, inner.AddProfile(ctx, model.UserProfile{Username: "bob", FirstName: "Bob", LastName: "Brown"}))

	got, err := s.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.FirstName)
}

func TestWrap_UnavailableCacheReturnsInner(t *testing.T) {
	inner := &countingStore{profiles: map[string]model.UserProfile{}}
	assert.Same(t, inner, cached.Wrap(inner, noop.New(), time.Minute))
	assert.Same(t, inner, cached.Wrap(inner, nil, time.Minute))
}
