package s3store_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/chat-service/internal/plugin/image/s3store"
	"github.com/chirino/chat-service/internal/registry/image/imagetest"
	"github.com/chirino/chat-service/internal/testutil/tests3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, externalEndpoint string) (*s3store.S3ImageStore, tests3.S3) {
	t.Helper()
	env := tests3.StartS3(t)
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	require.NoError(t, err)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(env.Endpoint)
		o.UsePathStyle = true
	})
	return s3store.New(client, env.Bucket, "/images/", externalEndpoint, t.TempDir()), env
}

func TestS3ImageStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s, env := newStore(t, "")
	ctx := context.Background()
	imagetest.Run(t, ctx, s)

	t.Run("SignedURL", func(t *testing.T) {
		img, err := s.Upload(ctx, strings.NewReader("direct"), 100, "text/plain")
		require.NoError(t, err)

		u, err := s.SignedURL(ctx, img.ID, time.Minute)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(u.String(), env.Endpoint))
		assert.Contains(t, u.Path, "/images/"+img.ID)

		resp, err := http.Get(u.String())
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "direct", string(body))
	})
}

func TestS3ImageStore_ExternalEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s, _ := newStore(t, "https://cdn.example.com/blobs")
	ctx := context.Background()

	img, err := s.Upload(ctx, strings.NewReader("x"), 100, "text/plain")
	require.NoError(t, err)
	u, err := s.SignedURL(ctx, img.ID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "cdn.example.com", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/blobs/"))
}
