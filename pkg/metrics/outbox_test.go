package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Record("stock_assigned", OutboxPublished)
	m.Record("stock_assigned", OutboxPublished)
	m.Record("stock_restocked", OutboxDeadLettered)
	m.Record("", OutboxRetried)
	m.ObserveBatch(30 * time.Millisecond)

	if got := testutil.ToFloat64(m.events.WithLabelValues("stock_assigned", OutboxPublished)); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown", OutboxRetried)); got != 1 {
		t.Fatalf("expected empty event type to fall back to unknown, got %f", got)
	}
	if got := testutil.CollectAndCount(m.batch); got != 1 {
		t.Fatalf("expected one batch histogram, got %d", got)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Record("stock_assigned", OutboxPublished)
	m.ObserveBatch(time.Second)
	NewOutboxMetrics(nil).Record("x", OutboxRetried)
}
