package service

import (
	"context"
	"strings"

	"github.com/chirino/chat-service/internal/model"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/telemetry"
)

// ProfileUpdate carries the mutable fields of a profile.
type ProfileUpdate struct {
	FirstName        string
	LastName         string
	ProfilePictureID string
}

// ProfileService validates and forwards profile directory operations.
type ProfileService struct {
	profiles registryprofile.ProfileStore
}

// NewProfileService creates a new profile service.
func NewProfileService(profiles registryprofile.ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &registrystore.ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// Create adds a new profile.
func (s *ProfileService) Create(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error) {
	for _, f := range []struct{ name, value string }{
		{"username", profile.Username},
		{"firstName", profile.FirstName},
		{"lastName", profile.LastName},
	} {
		if err := required(f.name, f.value); err != nil {
			return nil, err
		}
	}
	// Usernames become halves of conversation ids.
	if strings.Contains(profile.Username, registrystore.ConversationIDSeparator) {
		return nil, &registrystore.ValidationError{Field: "username", Message: "must not contain '" + registrystore.ConversationIDSeparator + "'"}
	}
	if err := s.profiles.AddProfile(ctx, profile); err != nil {
		return nil, err
	}
	telemetry.Track(ctx, telemetry.EventProfileCreated, "username", profile.Username)
	return &profile, nil
}

// Get returns the profile for username.
func (s *ProfileService) Get(ctx context.Context, username string) (*model.UserProfile, error) {
	return s.profiles.GetProfile(ctx, username)
}

// Update replaces the names and picture of an existing profile.
func (s *ProfileService) Update(ctx context.Context, username string, update ProfileUpdate) (*model.UserProfile, error) {
	if err := required("firstName", update.FirstName); err != nil {
		return nil, err
	}
	if err := required("lastName", update.LastName); err != nil {
		return nil, err
	}
	profile := model.UserProfile{
		Username:         username,
		FirstName:        update.FirstName,
		LastName:         update.LastName,
		ProfilePictureID: update.ProfilePictureID,
	}
	if err := s.profiles.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	telemetry.Track(ctx, telemetry.EventProfileUpdated, "username", username)
	return &profile, nil
}

// Delete removes the profile for username.
func (s *ProfileService) Delete(ctx context.Context, username string) error {
	if err := s.profiles.DeleteProfile(ctx, username); err != nil {
		return err
	}
	telemetry.Track(ctx, telemetry.EventProfileDeleted, "username", username)
	return nil
}
