package cron

import (
	"context"
	"fmt"

	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
)

const stockReconcileJobName = "stock-reconcile"

type stockReconciler interface {
	ReconcileAll(ctx context.Context, pageSize int) (stock.ReconcileSummary, error)
}

// StockReconcileJobParams configures the stock counter repair job.
type StockReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler stockReconciler
	Metrics    *metrics.JobMetrics
	PageSize   int
}

// NewStockReconcileJob recounts every product so counters written out of band
// converge back to the unused code count.
func NewStockReconcileJob(params StockReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("stock reconciler required")
	}
	return &stockReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		pageSize:   params.PageSize,
	}, nil
}

type stockReconcileJob struct {
	logg       *logger.Logger
	reconciler stockReconciler
	metrics    *metrics.JobMetrics
	pageSize   int
}

func (j *stockReconcileJob) Name() string { return stockReconcileJobName }

func (j *stockReconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.ReconcileAll(ctx, j.pageSize)
	j.metrics.AddCorrected(stockReconcileJobName, summary.Corrected)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":    summary.Scanned,
		"corrected":  summary.Corrected,
		"overridden": summary.Overridden,
		"failed":     summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("stock reconcile: %w", err)
	}
	j.logg.Info(logCtx, "stock.reconcile_complete")
	return nil
}
