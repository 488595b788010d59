package cron

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
)

type fakeReconciler struct {
	summary  stock.ReconcileSummary
	err      error
	pageSize int
	calls    int
}

func (f *fakeReconciler) ReconcileAll(_ context.Context, pageSize int) (stock.ReconcileSummary, error) {
	f.calls++
	f.pageSize = pageSize
	return f.summary, f.err
}

func TestStockReconcileJobReportsCorrections(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := &fakeReconciler{summary: stock.ReconcileSummary{Scanned: 12, Corrected: 3}}
	job, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Reconciler: rec,
		Metrics:    metrics.NewJobMetrics(reg),
		PageSize:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, "stock-reconcile", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 50, rec.pageSize)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var corrected float64
	for _, mf := range mfs {
		if mf.GetName() == "codeshop_job_counters_corrected_total" {
			corrected = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), corrected)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "codeshop_job_counters_corrected_total"))
}

func TestStockReconcileJobLogsKeptOverrides(t *testing.T) {
	var buf bytes.Buffer
	rec := &fakeReconciler{summary: stock.ReconcileSummary{Scanned: 5, Corrected: 1, Overridden: 2}}
	job, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Format: "json", Output: &buf}),
		Reconciler: rec,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "stock.reconcile_complete", entry["message"])
	assert.EqualValues(t, 2, entry["overridden"])
	assert.EqualValues(t, 1, entry["corrected"])
}

func TestStockReconcileJobPropagatesError(t *testing.T) {
	rec := &fakeReconciler{
		summary: stock.ReconcileSummary{Scanned: 4, Corrected: 1, Failed: 1},
		err:     errors.New("product locked"),
	}
	job, err := NewStockReconcileJob(StockReconcileJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Reconciler: rec,
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestNewStockReconcileJobValidates(t *testing.T) {
	_, err := NewStockReconcileJob(StockReconcileJobParams{Reconciler: &fakeReconciler{}})
	assert.Error(t, err)
	_, err = NewStockReconcileJob(StockReconcileJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	assert.Error(t, err)
}
