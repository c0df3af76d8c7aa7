package conversations

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/chirino/chat-service/internal/apierror"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/plugin/store/memory"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/service"
	"github.com/chirino/chat-service/internal/testutil/testprofiles"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	store := memory.New()
	profiles := testprofiles.New(
		model.UserProfile{Username: "alice", FirstName: "Alice", LastName: "A"},
		model.UserProfile{Username: "bob", FirstName: "Bob", LastName: "B"},
	)
	messages := service.NewMessageService(store, &cfg)
	svc := &registryroute.Services{
		Config:        &cfg,
		Messages:      messages,
		Conversations: service.NewConversationService(store, profiles, messages, &cfg),
	}
	r := gin.New()
	r.Use(apierror.Middleware(cfg.IsProd()))
	require.NoError(t, mount(r, svc))
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const createBody = `{"participants":["alice","bob"],"firstMessage":{"id":"m1","text":"hi","senderUsername":"alice"}}`

func TestCreateAndReadConversation(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/conversations", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/conversations/alice_bob", w.Header().Get("Location"))
	created := decode[createConversationResponse](t, w)
	assert.Equal(t, "alice_bob", created.ID)
	assert.NotZero(t, created.CreatedUnixTime)

	var seen []model.Conversation
	for _, user := range []string{"alice", "bob", ""} {
		w = do(r, http.MethodGet, "/conversations/alice_bob?username="+user, "")
		require.Equal(t, http.StatusOK, w.Code)
		seen = append(seen, decode[model.Conversation](t, w))
	}
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[0], seen[2])
	assert.Equal(t, created.CreatedUnixTime, seen[0].LastModifiedUnixTime)

	w = do(r, http.MethodGet, "/conversations/alice_bob/messages/m1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi", decode[model.Message](t, w).Text)

	// Re-posting is idempotent.
	w = do(r, http.MethodPost, "/conversations", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, created, decode[createConversationResponse](t, w))

	w = do(r, http.MethodGet, "/conversations/alice_bob/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Messages []model.MessagesInfo `json:"messages"`
	}](t, w).Messages, 1)
}

func TestCreateConversation_BadRequests(t *testing.T) {
	r := newRouter(t)
	for _, body := range []string{
		`{"participants":["alice"],"firstMessage":{"id":"m1","text":"hi"}}`,
		`{"participants":["alice","bob"],"firstMessage":{"id":"m1","text":"   "}}`,
		`{"participants":["alice","bob"]}`,
		`{`,
	} {
		w := do(r, http.MethodPost, "/conversations", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		resp := decode[map[string]any](t, w)
		assert.Equal(t, apierror.CodeBadRequest, resp["code"])
		assert.Contains(t, resp, "exception")
	}
}

func TestMessages(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/conversations", createBody).Code)

	w := do(r, http.MethodPost, "/conversations/alice_bob/messages", `{"id":"m2","text":"hello","senderUsername":"bob"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[model.Message](t, w)
	assert.Equal(t, "/conversations/alice_bob/messages/m2", w.Header().Get("Location"))

	w = do(r, http.MethodPost, "/conversations/alice_bob/messages", `{"id":"m2","text":"edited","senderUsername":"bob"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, first, decode[model.Message](t, w))

	w = do(r, http.MethodPost, "/conversations/alice_bob/messages", `{"id":"m3","text":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/conversations/alice_bob/messages/m2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/conversations/alice_bob/messages/m2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/conversations/alice_bob/messages/m2", "").Code)
}

func TestListMessages_FollowsNextURI(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/conversations", createBody).Code)
	for i := 2; i <= 5; i++ {
		body := fmt.Sprintf(`{"id":"m%d","text":"msg %d","senderUsername":"alice"}`, i, i)
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/conversations/alice_bob/messages", body).Code)
	}

	type page struct {
		Messages []model.MessagesInfo `json:"messages"`
		NextURI  string               `json:"nextUri"`
	}
	w := do(r, http.MethodGet, "/conversations/alice_bob/messages?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[page](t, w)
	require.Len(t, first.Messages, 3)
	require.NotEmpty(t, first.NextURI)

	next, err := url.Parse(first.NextURI)
	require.NoError(t, err)
	assert.Equal(t, "/conversations/alice_bob/messages", next.Path)
	assert.Equal(t, "3", next.Query().Get("limit"))
	assert.Equal(t, "0", next.Query().Get("lastSeenMessageTime"))

	w = do(r, http.MethodGet, first.NextURI, "")
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[page](t, w)
	assert.Len(t, second.Messages, 2)
	assert.Empty(t, second.NextURI)
	assert.GreaterOrEqual(t, first.Messages[2].UnixTime, second.Messages[0].UnixTime)
}

func TestListConversations(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/conversations", createBody).Code)

	type page struct {
		Conversations []model.ConversationsInfo `json:"conversations"`
		NextURI       string                    `json:"nextUri"`
	}
	w := do(r, http.MethodGet, "/conversations?username=alice", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[page](t, w)
	require.Len(t, got.Conversations, 1)
	assert.Equal(t, "bob", got.Conversations[0].Recipient.Username)
	assert.Empty(t, got.NextURI)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/conversations", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/conversations?username=alice&limit=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/conversations?username=alice&continuationToken=%25%25%25", "").Code)
}

func TestDeleteConversation_IsOneSided(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/conversations", createBody).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/conversations/alice_bob/alice", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/conversations/alice_bob?username=alice", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/conversations/alice_bob?username=bob", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/conversations/alice_bob/alice", "").Code)
}

func TestNextURI(t *testing.T) {
	got := nextURI("/conversations", url.Values{"username": {"alice"}}, "lastSeenConversationTime",
		registrystore.PageQuery{LastSeenUnixTime: 42}, 10, "tok+/=")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"username":                 {"alice"},
		"limit":                    {"10"},
		"lastSeenConversationTime": {"42"},
		"continuationToken":        {"tok+/="},
	}, u.Query())
}
