package system

import (
	"net/http"
	"sync/atomic"

	registryroute "github.com/chirino/chat-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ready atomic.Bool

// MarkReady signals that every store is loaded and the listener is accepting
// connections.
func MarkReady() {
	ready.Store(true)
}

// MarkNotReady flips readiness back off, used while draining on shutdown.
func MarkNotReady() {
	ready.Store(false)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: mount,
	})
}

func mount(r gin.IRouter, _ *registryroute.Services) error {
	// Liveness: process is up
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: stores are loaded
	r.GET("/ready", func(c *gin.Context) {
		if ready.Load() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		}
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}
