package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chirino/chat-service/internal/config"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	"github.com/chirino/chat-service/internal/testutil/testimages"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	registryimage.Register(registryimage.Plugin{
		Name: "test",
		Loader: func(context.Context) (registryimage.ImageStore, error) {
			return testimages.New(), nil
		},
	})
}

func TestIsImageUpload(t *testing.T) {
	t.Run("multipart image upload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader("abcdef"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
		require.True(t, isImageUpload(req))
	})

	t.Run("json post to images", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		require.False(t, isImageUpload(req))
	})

	t.Run("other endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
		require.False(t, isImageUpload(req))
	})
}

func TestMaxBodySizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/images", readBodyLengthHandler)
	router.POST("/profile", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestStartServer_EndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "memory"
	cfg.DatastoreMigrateAtStart = false
	cfg.ProfileStoreType = "sqlite"
	cfg.ProfileDBURL = fmt.Sprintf("file:serve-%s?mode=memory&cache=shared", uuid.NewString())
	cfg.ImageStoreType = "test"
	cfg.CacheType = "local"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	cfg.MetricsLabels = "service=chat-service-test"

	ctx := config.WithContext(context.Background(), &cfg)
	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)
	call := func(method, path, body string) (*http.Response, map[string]any) {
		req, err := http.NewRequest(method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			require.NoError(t, json.Unmarshal(data, &out), string(data))
		}
		return resp, out
	}

	resp, _ := call(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	for _, user := range []string{"alice", "bob"} {
		resp, body := call(http.MethodPost, "/profile", fmt.Sprintf(`{"username":%q,"firstName":"F","lastName":"L"}`, user))
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}

	resp, body := call(http.MethodPost, "/conversations", `{"participants":["alice","bob"],"firstMessage":{"id":"m1","text":"hi","senderUsername":"alice"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "alice_bob", body["id"])

	resp, body = call(http.MethodGet, "/conversations?username=bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	convs, _ := body["conversations"].([]any)
	require.Len(t, convs, 1)
	recipient := convs[0].(map[string]any)["recipient"].(map[string]any)
	assert.Equal(t, "alice", recipient["username"])

	resp, body = call(http.MethodGet, "/conversations/alice_bob/messages/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	resp, _ = call(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
