package images

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/chat-service/internal/registry/route"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// FormField is the multipart field carrying the uploaded image.
const FormField = "file"

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  110,
		Loader: mount,
	})
}

func mount(r gin.IRouter, svc *registryroute.Services) error {
	images := svc.Images

	r.POST("/images", func(c *gin.Context) {
		// The part is streamed into the store, the form is never buffered.
		mr, err := c.Request.MultipartReader()
		if err != nil {
			_ = c.Error(&registrystore.ValidationError{Field: FormField, Message: err.Error()})
			return
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				_ = c.Error(&registrystore.ValidationError{Field: FormField, Message: "multipart field is required"})
				return
			}
			if err != nil {
				_ = c.Error(&registrystore.ValidationError{Field: FormField, Message: err.Error()})
				return
			}
			if part.FormName() != FormField {
				_ = part.Close()
				continue
			}
			img, err := images.Upload(c.Request.Context(), part, part.Header.Get("Content-Type"))
			_ = part.Close()
			if err != nil {
				_ = c.Error(err)
				return
			}
			c.Header("Location", "/images/"+img.ID)
			c.JSON(http.StatusCreated, gin.H{"imageId": img.ID})
			return
		}
	})

	r.GET("/images/:id", func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")
		if u, ok, err := images.DirectURL(ctx, id); err != nil {
			_ = c.Error(err)
			return
		} else if ok {
			c.Redirect(http.StatusTemporaryRedirect, u.String())
			return
		}
		rc, err := images.Download(ctx, id)
		if err != nil {
			_ = c.Error(err)
			return
		}
		defer func() {
			if err := rc.Close(); err != nil {
				log.FromContext(ctx).Warn("Closing image stream failed", "imageId", id, "err", err)
			}
		}()
		c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, nil)
	})

	r.DELETE("/images/:id", func(c *gin.Context) {
		if err := images.Delete(c.Request.Context(), c.Param("id")); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})
	return nil
}
