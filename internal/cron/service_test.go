package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, registry *Registry, lock Lock, m *metrics.JobMetrics) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "stock-reconcile"}
	failing := &testJob{name: "outbox-retention", err: errors.New("boom")}
	reg := prometheus.NewRegistry()
	service := newTestService(t, NewRegistry(ok, failing), &fakeLock{}, metrics.NewJobMetrics(reg))

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "codeshop_job_failure_total"))
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "stock-reconcile"}
	reg := prometheus.NewRegistry()
	service := newTestService(t, NewRegistry(job), &fakeLock{held: true}, metrics.NewJobMetrics(reg))

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "codeshop_job_skipped_total"))
}

func TestServiceReleasesLockAfterCycle(t *testing.T) {
	lock := &fakeLock{}
	service := newTestService(t, NewRegistry(&testJob{name: "outbox-retention"}), lock, nil)

	require.NoError(t, service.runCycle(context.Background()))
	assert.False(t, lock.held)
}

func TestServiceRunsOnlyDueJobsAndSkipsLockWhenIdle(t *testing.T) {
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reconcile := &testJob{name: "stock-reconcile"}
	retention := &testJob{name: "outbox-retention"}
	registry := &Registry{}
	registry.Register(reconcile, 15*time.Minute)
	registry.Register(retention, 24*time.Hour)

	lock := &fakeLock{}
	service := newTestService(t, registry, lock, nil)
	service.now = func() time.Time { return clock }
	assert.Equal(t, 15*time.Minute, service.tick)

	require.NoError(t, service.runCycle(context.Background()))
	clock = clock.Add(5 * time.Minute)
	require.NoError(t, service.runCycle(context.Background()))
	clock = clock.Add(10 * time.Minute)
	require.NoError(t, service.runCycle(context.Background()))

	assert.Equal(t, 2, reconcile.runs)
	assert.Equal(t, 1, retention.runs)
	assert.Equal(t, 2, lock.acquires, "idle cycle must not touch the lock")
}
