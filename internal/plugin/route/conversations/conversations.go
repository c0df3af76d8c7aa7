package conversations

import (
	"net/http"
	"net/url"

	"github.com/chirino/chat-service/internal/apierror"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/chirino/chat-service/internal/service"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  120,
		Loader: mount,
	})
}

func mount(r gin.IRouter, svc *registryroute.Services) error {
	g := r.Group("/conversations")

	g.GET("", func(c *gin.Context) {
		listConversations(c, svc)
	})
	g.POST("", func(c *gin.Context) {
		createConversation(c, svc.Conversations)
	})
	g.GET("/:conversationId", func(c *gin.Context) {
		getConversation(c, svc.Conversations)
	})
	g.DELETE("/:conversationId/:username", func(c *gin.Context) {
		deleteConversation(c, svc.Conversations)
	})

	g.GET("/:conversationId/messages", func(c *gin.Context) {
		listMessages(c, svc)
	})
	g.POST("/:conversationId/messages", func(c *gin.Context) {
		addMessage(c, svc.Messages)
	})
	g.GET("/:conversationId/messages/:messageId", func(c *gin.Context) {
		getMessage(c, svc.Messages)
	})
	g.DELETE("/:conversationId/messages/:messageId", func(c *gin.Context) {
		deleteMessage(c, svc.Messages)
	})
	return nil
}

type messageRequest struct {
	ID             string `json:"id" binding:"required"`
	Text           string `json:"text" binding:"required"`
	SenderUsername string `json:"senderUsername"`
}

type createConversationRequest struct {
	Participants []string       `json:"participants" binding:"required"`
	FirstMessage messageRequest `json:"firstMessage"`
}

type createConversationResponse struct {
	ID              string `json:"id"`
	CreatedUnixTime int64  `json:"createdUnixTime"`
}

func listConversations(c *gin.Context, svc *registryroute.Services) {
	username := c.Query("username")
	query, err := pageQuery(c, "lastSeenConversationTime")
	if err != nil {
		_ = c.Error(err)
		return
	}
	list, err := svc.Conversations.List(c.Request.Context(), username, query)
	if err != nil {
		_ = c.Error(err)
		return
	}
	resp := gin.H{"conversations": list.Conversations}
	if list.ContinuationToken != "" {
		resp["nextUri"] = nextURI(c.Request.URL.Path, url.Values{"username": {username}},
			"lastSeenConversationTime", query, svc.Config.PageSize(query.Limit), list.ContinuationToken)
	}
	c.JSON(http.StatusOK, resp)
}

func createConversation(c *gin.Context, conversations *service.ConversationService) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apierror.BindError(err))
		return
	}
	created, err := conversations.Create(c.Request.Context(), service.CreateConversation{
		Participants: req.Participants,
		FirstMessage: service.NewMessage(req.FirstMessage),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Location", "/conversations/"+created.ID)
	c.JSON(http.StatusCreated, createConversationResponse(*created))
}

func getConversation(c *gin.Context, conversations *service.ConversationService) {
	conv, err := conversations.Get(c.Request.Context(), c.Param("conversationId"), c.Query("username"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func deleteConversation(c *gin.Context, conversations *service.ConversationService) {
	if err := conversations.Delete(c.Request.Context(), c.Param("conversationId"), c.Param("username")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusOK)
}
