// Package cached puts a ProfileCache in front of a ProfileStore.
package cached

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/model"
	registrycache "github.com/chirino/chat-service/internal/registry/cache"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	"github.com/chirino/chat-service/internal/telemetry"
)

// Wrap returns a read-through ProfileStore. Cache failures are logged and the
// call falls through to inner; they never fail a request. When c is nil or not
// available, inner is returned unchanged.
func Wrap(inner registryprofile.ProfileStore, c registrycache.ProfileCache, ttl time.Duration) registryprofile.ProfileStore {
	if c == nil || !c.Available() {
		return inner
	}
	return &cachedStore{inner: inner, cache: c, ttl: ttl}
}

type cachedStore struct {
	inner registryprofile.ProfileStore
	cache registrycache.ProfileCache
	ttl   time.Duration
}

func (s *cachedStore) AddProfile(ctx context.Context, profile model.UserProfile) error {
	return s.inner.AddProfile(ctx, profile)
}

func (s *cachedStore) GetProfile(ctx context.Context, username string) (*model.UserProfile, error) {
	if hit, err := s.cache.Get(ctx, username); err != nil {
		log.FromContext(ctx).Warn("Profile cache read failed", "username", username, "err", err)
	} else if hit != nil {
		telemetry.CacheHit(true)
		return hit, nil
	}
	telemetry.CacheHit(false)

	profile, err := s.inner.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, *profile, s.ttl); err != nil {
		log.FromContext(ctx).Warn("Profile cache write failed", "username", username, "err", err)
	}
	return profile, nil
}

func (s *cachedStore) UpdateProfile(ctx context.Context, profile model.UserProfile) error {
	err := s.inner.UpdateProfile(ctx, profile)
	s.invalidate(ctx, profile.Username)
	return err
}

func (s *cachedStore) DeleteProfile(ctx context.Context, username string) error {
	err := s.inner.DeleteProfile(ctx, username)
	s.invalidate(ctx, username)
	return err
}

func (s *cachedStore) invalidate(ctx context.Context, username string) {
	if err := s.cache.Remove(ctx, username); err != nil {
		log.FromContext(ctx).Warn("Profile cache invalidation failed", "username", username, "err", err)
	}
}
