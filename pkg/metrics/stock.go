package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stock operation labels.
const (
	OpAssign   = "assign"
	OpRestock  = "restock"
	OpDelete   = "delete"
	OpOverride = "override"
	OpRecount  = "recount"
)

// Outcome labels.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeConflict          = "conflict"
	OutcomeError             = "error"
)

// StockMetrics tracks the stock catalog write paths.
type StockMetrics struct {
	operations *prometheus.CounterVec
	codes      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewStockMetrics registers the stock metrics on the provided registerer. A nil
// registerer yields a no-op collector.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "operations_total",
		Help:      "Stock operations by outcome.",
	}, []string{"operation", "outcome"})
	codes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "codes_total",
		Help:      "Codes touched by stock operations.",
	}, []string{"operation", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "operation_duration_seconds",
		Help:      "Duration of stock operations in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})
	reg.MustRegister(operations, codes, duration)
	return &StockMetrics{operations: operations, codes: codes, duration: duration}
}

// Observe records one finished operation.
func (m *StockMetrics) Observe(op, outcome string, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(op)).Observe(elapsed.Seconds())
}

// AddCodes counts codes by result, e.g. restock "added" and "skipped".
func (m *StockMetrics) AddCodes(op, result string, n int) {
	if m == nil || m.codes == nil || n <= 0 {
		return
	}
	m.codes.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Add(float64(n))
}
