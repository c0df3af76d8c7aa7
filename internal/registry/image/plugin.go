package image

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"
)

// Image describes a stored blob.
type Image struct {
	ID          string
	Size        int64
	SHA256      string
	ContentType string
}

// ImageStore holds opaque image blobs under server-generated ids. Errors use the
// types in registry/store; a missing id is a NotFoundError.
type ImageStore interface {
	// Upload stores at most maxSize bytes of data under a new id. Larger input
	// fails with *tempfiles.TooLargeError and nothing is stored.
	Upload(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*Image, error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// SignedURLStore is implemented by stores that can hand out time-limited direct
// download links.
type SignedURLStore interface {
	SignedURL(ctx context.Context, id string, expiry time.Duration) (*url.URL, error)
}

// Loader creates an ImageStore from config.
type Loader func(ctx context.Context) (ImageStore, error)

// Plugin represents an image store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an image store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered image store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named image store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown image store %q; valid: %v", name, Names())
}
