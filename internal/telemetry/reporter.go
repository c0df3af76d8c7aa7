package telemetry

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Event names a domain event emitted by the services.
type Event string

const (
	EventConversationCreated Event = "ConversationCreated"
	EventConversationDeleted Event = "ConversationDeleted"
	EventMessageCreated      Event = "MessageCreated"
	EventMessageDeleted      Event = "MessageDeleted"
	EventProfileCreated      Event = "ProfileCreated"
	EventProfileUpdated      Event = "ProfileUpdated"
	EventProfileDeleted      Event = "ProfileDeleted"
	EventImageUploaded       Event = "ImageUploaded"
	EventImageDeleted        Event = "ImageDeleted"
)

// Reporter receives domain events. Properties are free-form identifiers of the
// affected records.
type Reporter interface {
	TrackEvent(ctx context.Context, event Event, props map[string]string)
}

// MetricsReporter counts events in chat_service_events_total and logs them at
// debug level through the request-scoped logger.
type MetricsReporter struct{}

func (MetricsReporter) TrackEvent(ctx context.Context, event Event, props map[string]string) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(string(event)).Inc()
	}
	kv := make([]any, 0, 2+2*len(props))
	kv = append(kv, "event", string(event))
	for k, v := range props {
		kv = append(kv, k, v)
	}
	log.FromContext(ctx).Debug("Domain event", kv...)
}

type noopReporter struct{}

func (noopReporter) TrackEvent(context.Context, Event, map[string]string) {}

type reporterKey struct{}

// WithReporter returns a context carrying r.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReporterFromContext returns the reporter stored in ctx, or one that drops
// every event.
func ReporterFromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok && r != nil {
		return r
	}
	return noopReporter{}
}

// Track emits event through the context's reporter.
func Track(ctx context.Context, event Event, kv ...string) {
	props := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		props[kv[i]] = kv[i+1]
	}
	ReporterFromContext(ctx).TrackEvent(ctx, event, props)
}

// ReporterMiddleware injects r into every request context.
func ReporterMiddleware(r Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithReporter(c.Request.Context(), r))
		c.Next()
	}
}
