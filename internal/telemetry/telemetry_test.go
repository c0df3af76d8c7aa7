package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("POD_NAME", "chat-0")

	labels, err := ParseMetricsLabels("service=chat-service, pod=${POD_NAME}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "chat-service", "pod": "chat-0"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	require.Error(t, err)

	_, err = ParseMetricsLabels("9bad=x")
	require.Error(t, err)
}

type recorded struct {
	event Event
	props map[string]string
}

type recordingReporter struct {
	events []recorded
}

func (r *recordingReporter) TrackEvent(_ context.Context, event Event, props map[string]string) {
	r.events = append(r.events, recorded{event, props})
}

func TestTrack_UsesContextReporter(t *testing.T) {
	rec := &recordingReporter{}
	ctx := WithReporter(context.Background(), rec)

	Track(ctx, EventMessageCreated, "conversationId", "alice_bob", "messageId", "m1")

	require.Len(t, rec.events, 1)
	assert.Equal(t, EventMessageCreated, rec.events[0].event)
	assert.Equal(t, map[string]string{"conversationId": "alice_bob", "messageId": "m1"}, rec.events[0].props)
}

func TestTrack_WithoutReporterIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Track(context.Background(), EventImageDeleted, "imageId", "x")
	})
}

func TestMiddleware_InjectsReporterAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &recordingReporter{}

	r := gin.New()
	r.Use(AccessLogMiddleware("/health"), ReporterMiddleware(rec))
	r.GET("/ping", func(c *gin.Context) {
		Track(c.Request.Context(), EventProfileCreated, "username", "alice")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventProfileCreated, rec.events[0].event)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
