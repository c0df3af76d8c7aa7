package images

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/apierror"
	"github.com/chirino/chat-service/internal/config"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/chirino/chat-service/internal/service"
	"github.com/chirino/chat-service/internal/testutil/testimages"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signingStore struct {
	*testimages.Store
}

func (signingStore) SignedURL(_ context.Context, id string, _ time.Duration) (*url.URL, error) {
	return url.Parse("https://cdn.example.test/images/" + id)
}

func newRouter(t *testing.T, cfg *config.Config, images *service.ImageService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apierror.Middleware(cfg.IsProd()))
	require.NoError(t, mount(r, &registryroute.Services{Config: cfg, Images: images}))
	return r
}

func upload(t *testing.T, r http.Handler, field string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, "avatar.png")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestImageLifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	r := newRouter(t, &cfg, service.NewImageService(testimages.New(), &cfg))
	payload := []byte("\x89PNG fake image bytes")

	w := upload(t, r, FormField, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ImageID string `json:"imageId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ImageID)
	assert.Equal(t, "/images/"+created.ImageID, w.Header().Get("Location"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/"+created.ImageID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	got, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/images/"+created.ImageID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/images/"+created.ImageID, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}

func TestUploadRejections(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ImageMaxSize = 8
	r := newRouter(t, &cfg, service.NewImageService(testimages.New(), &cfg))

	assert.Equal(t, http.StatusBadRequest, upload(t, r, "other", []byte("x")).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, r, FormField, []byte("more than eight bytes")).Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/images", bytes.NewReader([]byte("raw"))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectDownloadRedirects(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ImageDirectDownload = true
	r := newRouter(t, &cfg, service.NewImageService(signingStore{testimages.New()}, &cfg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/abc", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://cdn.example.test/images/abc", w.Header().Get("Location"))
}
