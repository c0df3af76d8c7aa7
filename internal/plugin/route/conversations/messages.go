package conversations

import (
	"net/http"
	"net/url"

	"github.com/chirino/chat-service/internal/apierror"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/chirino/chat-service/internal/service"
	"github.com/gin-gonic/gin"
)

func listMessages(c *gin.Context, svc *registryroute.Services) {
	query, err := pageQuery(c, "lastSeenMessageTime")
	if err != nil {
		_ = c.Error(err)
		return
	}
	list, err := svc.Messages.List(c.Request.Context(), c.Param("conversationId"), query)
	if err != nil {
		_ = c.Error(err)
		return
	}
	resp := gin.H{"messages": list.Messages}
	if list.ContinuationToken != "" {
		resp["nextUri"] = nextURI(c.Request.URL.Path, url.Values{},
			"lastSeenMessageTime", query, svc.Config.PageSize(query.Limit), list.ContinuationToken)
	}
	c.JSON(http.StatusOK, resp)
}

// addMessage answers 201 with the stored message whether or not the id was new.
func addMessage(c *gin.Context, messages *service.MessageService) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apierror.BindError(err))
		return
	}
	conversationID := c.Param("conversationId")
	msg, err := messages.Add(c.Request.Context(), conversationID, service.NewMessage(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Location", "/conversations/"+conversationID+"/messages/"+msg.ID)
	c.JSON(http.StatusCreated, msg)
}

func getMessage(c *gin.Context, messages *service.MessageService) {
	msg, err := messages.Get(c.Request.Context(), c.Param("conversationId"), c.Param("messageId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func deleteMessage(c *gin.Context, messages *service.MessageService) {
	if err := messages.Delete(c.Request.Context(), c.Param("conversationId"), c.Param("messageId")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusOK)
}
