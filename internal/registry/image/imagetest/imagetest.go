// Package imagetest checks the ImageStore contract shared by image plugins.
package imagetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run uploads, downloads and deletes blobs through s.
func Run(t *testing.T, ctx context.Context, s registryimage.ImageStore) {
	t.Run("RoundTrip", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 4096)
		img, err := s.Upload(ctx, bytes.NewReader(payload), 1<<20, "image/png")
		require.NoError(t, err)
		require.NotEmpty(t, img.ID)
		assert.Equal(t, int64(len(payload)), img.Size)
		assert.Len(t, img.SHA256, 64)

		rc, err := s.Download(ctx, img.ID)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("IDsAreUnique", func(t *testing.T) {
		a, err := s.Upload(ctx, strings.NewReader("same"), 100, "application/octet-stream")
		require.NoError(t, err)
		b, err := s.Upload(ctx, strings.NewReader("same"), 100, "application/octet-stream")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("TooLarge", func(t *testing.T) {
		_, err := s.Upload(ctx, strings.NewReader("0123456789"), 5, "application/octet-stream")
		var tooLarge *tempfiles.TooLargeError
		require.True(t, errors.As(err, &tooLarge), "got %v", err)
	})

	t.Run("Delete", func(t *testing.T) {
		img, err := s.Upload(ctx, strings.NewReader("bye"), 100, "text/plain")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, img.ID))

		var notFound *registrystore.NotFoundError
		_, err = s.Download(ctx, img.ID)
		require.True(t, errors.As(err, &notFound), "download after delete: %v", err)

		err = s.Delete(ctx, img.ID)
		require.True(t, errors.As(err, &notFound), "second delete: %v", err)
	})

	t.Run("MissingID", func(t *testing.T) {
		var notFound *registrystore.NotFoundError
		_, err := s.Download(ctx, "00000000-0000-4000-8000-000000000000")
		require.True(t, errors.As(err, &notFound), "got %v", err)
	})
}
