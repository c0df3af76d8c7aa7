// Package apierror turns errors attached to a gin context into JSON responses.
// Handlers call c.Error(err) and return; Middleware writes the response.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/gin-gonic/gin"
)

// Response codes.
const (
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeBadRequest    = "bad_request"
	CodeConflict      = "conflict"
	CodeUnavailable   = "unavailable"
	CodeTooLarge      = "too_large"
	CodeInternal      = "internal"
)

// Classify returns the HTTP status and response code for err.
func Classify(err error) (int, string) {
	var (
		notFound    *registrystore.NotFoundError
		exists      *registrystore.AlreadyExistsError
		validation  *registrystore.ValidationError
		conflict    *registrystore.ConflictError
		unavailable *registrystore.UnavailableError
		tooLarge    *tempfiles.TooLargeError
		maxBytes    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &exists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.As(err, &validation), errors.As(err, &tooLarge):
		return http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &conflict):
		return http.StatusPreconditionFailed, CodeConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.As(err, &unavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// BindError wraps a request binding failure as a ValidationError, except when
// the body hit the size limit.
func BindError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return &registrystore.ValidationError{Field: "body", Message: err.Error()}
}

// Middleware writes {"code","error"} for the last error recorded on the context
// when the handler has not written a response. Unless prod is set the raw error
// is added as "exception".
func Middleware(prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		err := last.Err
		status, code := Classify(err)

		message := err.Error()
		logger := log.FromContext(c.Request.Context())
		kv := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "err", err}
		switch code {
		case CodeInternal:
			message = "internal server error"
			logger.Error("Request failed", kv...)
		case CodeUnavailable:
			message = "storage unavailable"
			logger.Error("Request failed", kv...)
		default:
			logger.Warn("Request failed", kv...)
		}

		body := gin.H{"code": code, "error": message}
		if !prod {
			body["exception"] = err.Error()
		}
		c.AbortWithStatusJSON(status, body)
	}
}
