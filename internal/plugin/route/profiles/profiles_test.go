package profiles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chirino/chat-service/internal/apierror"
	"github.com/chirino/chat-service/internal/model"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/chirino/chat-service/internal/service"
	"github.com/chirino/chat-service/internal/testutil/testprofiles"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apierror.Middleware(false))
	require.NoError(t, mount(r, &registryroute.Services{Profiles: service.NewProfileService(testprofiles.New())}))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProfileLifecycle(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/profile", `{"username":"alice","firstName":"Alice","lastName":"Smith"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/profile/alice", w.Header().Get("Location"))

	w = do(r, http.MethodPost, "/profile", `{"username":"alice","firstName":"Alice","lastName":"Smith"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPut, "/profile/alice", `{"firstName":"Al","lastName":"Smith","profilePictureId":"img"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/profile/alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.UserProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.UserProfile{Username: "alice", FirstName: "Al", LastName: "Smith", ProfilePictureID: "img"}, got)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/profile/alice", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/profile/alice", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/profile/alice", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/profile/alice", `{"firstName":"A","lastName":"S"}`).Code)
}

func TestProfileValidation(t *testing.T) {
	r := newRouter(t)

	for _, body := range []string{
		`{"firstName":"Alice","lastName":"Smith"}`,
		`{"username":"alice","lastName":"Smith"}`,
		`{"username":"alice","firstName":"  ","lastName":"Smith"}`,
		`not json`,
	} {
		w := do(r, http.MethodPost, "/profile", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, apierror.CodeBadRequest, resp["code"])
	}

	w := do(r, http.MethodPut, "/profile/alice", `{"lastName":"Smith"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
