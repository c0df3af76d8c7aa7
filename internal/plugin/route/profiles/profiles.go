package profiles

import (
	"net/http"

	"github.com/chirino/chat-service/internal/apierror"
	"github.com/chirino/chat-service/internal/model"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/chirino/chat-service/internal/service"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  100,
		Loader: mount,
	})
}

type createRequest struct {
	Username         string `json:"username" binding:"required"`
	FirstName        string `json:"firstName" binding:"required"`
	LastName         string `json:"lastName" binding:"required"`
	ProfilePictureID string `json:"profilePictureId"`
}

type updateRequest struct {
	FirstName        string `json:"firstName" binding:"required"`
	LastName         string `json:"lastName" binding:"required"`
	ProfilePictureID string `json:"profilePictureId"`
}

func mount(r gin.IRouter, svc *registryroute.Services) error {
	profiles := svc.Profiles
	r.POST("/profile", func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apierror.BindError(err))
			return
		}
		profile, err := profiles.Create(c.Request.Context(), model.UserProfile(req))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.Header("Location", "/profile/"+profile.Username)
		c.JSON(http.StatusCreated, profile)
	})
	r.GET("/profile/:username", func(c *gin.Context) {
		profile, err := profiles.Get(c.Request.Context(), c.Param("username"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})
	r.PUT("/profile/:username", func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apierror.BindError(err))
			return
		}
		profile, err := profiles.Update(c.Request.Context(), c.Param("username"), service.ProfileUpdate(req))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})
	r.DELETE("/profile/:username", func(c *gin.Context) {
		if err := profiles.Delete(c.Request.Context(), c.Param("username")); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})
	return nil
}
