package metrics_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/plugin/store/memory"
	"github.com/chirino/chat-service/internal/plugin/store/metrics"
	"github.com/chirino/chat-service/internal/registry/store/storetest"
	"github.com/chirino/chat-service/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

func TestWrappedStoreKeepsContract(t *testing.T) {
	telemetry.InitMetrics(prometheus.Labels{"service": "test"})
	storetest.Run(t, context.Background(), metrics.Wrap(memory.New()))
}
