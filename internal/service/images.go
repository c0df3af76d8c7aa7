package service

import (
	"context"
	"io"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	"github.com/chirino/chat-service/internal/telemetry"
)

// ImageService stores profile pictures and other opaque images.
type ImageService struct {
	images registryimage.ImageStore
	cfg    *config.Config
}

// NewImageService creates a new image service.
func NewImageService(images registryimage.ImageStore, cfg *config.Config) *ImageService {
	return &ImageService{images: images, cfg: cfg}
}

// Upload stores data under a new id, enforcing the configured size limit.
func (s *ImageService) Upload(ctx context.Context, data io.Reader, contentType string) (*registryimage.Image, error) {
	img, err := s.images.Upload(ctx, data, s.cfg.ImageMaxSize, contentType)
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).Debug("Image stored", "imageId", img.ID, "size", img.Size, "sha256", img.SHA256)
	telemetry.Track(ctx, telemetry.EventImageUploaded, "imageId", img.ID)
	return img, nil
}

// Download opens the stored bytes. The caller closes the reader.
func (s *ImageService) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.images.Download(ctx, id)
}

// DirectURL returns a time-limited link to the image when direct downloads are
// enabled and the store can sign links. ok is false otherwise.
func (s *ImageService) DirectURL(ctx context.Context, id string) (u *url.URL, ok bool, err error) {
	if !s.cfg.ImageDirectDownload {
		return nil, false, nil
	}
	signer, isSigner := s.images.(registryimage.SignedURLStore)
	if !isSigner {
		return nil, false, nil
	}
	u, err = signer.SignedURL(ctx, id, s.cfg.ImageDownloadURLExpiresIn)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Delete removes an image.
func (s *ImageService) Delete(ctx context.Context, id string) error {
	if err := s.images.Delete(ctx, id); err != nil {
		return err
	}
	telemetry.Track(ctx, telemetry.EventImageDeleted, "imageId", id)
	return nil
}
