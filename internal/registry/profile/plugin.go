package profile

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/model"
)

// ProfileStore is the username-keyed profile directory. Errors use the types in
// registry/store: NotFoundError, AlreadyExistsError, ConflictError and
// UnavailableError.
type ProfileStore interface {
	AddProfile(ctx context.Context, profile model.UserProfile) error
	GetProfile(ctx context.Context, username string) (*model.UserProfile, error)
	// UpdateProfile replaces the names and picture id of an existing profile. A
	// concurrent modification between read and write fails with ConflictError.
	UpdateProfile(ctx context.Context, profile model.UserProfile) error
	DeleteProfile(ctx context.Context, username string) error
}

// Loader creates a ProfileStore from config.
type Loader func(ctx context.Context) (ProfileStore, error)

// Plugin represents a profile store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a profile store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered profile store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named profile store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown profile store %q; valid: %v", name, Names())
}
