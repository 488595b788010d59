package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/pkg/logger"
)

const (
	outboxRetentionJobName = "outbox-retention"

	day                  = 24 * time.Hour
	defaultOutboxKeep    = 30 * day
	defaultDeadKeep      = 90 * day
	defaultTerminalAfter = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures outbox cleanup. Windows are in days; a
// nil DeadLetters skips dead-letter pruning.
type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxPruner
	DeadLetters      deadLetterPruner
	RetentionDays    int
	DLQRetentionDays int
	// MinAttempts marks an unpublished row as terminal; match the publisher's max attempts.
	MinAttempts int
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	outbox        outboxPruner
	deadLetters   deadLetterPruner
	keepOutbox    time.Duration
	keepDead      time.Duration
	terminalAfter int
	now           func() time.Time
}

// NewOutboxRetentionJob prunes delivered outbox rows, rows already copied to
// the DLQ, and dead letters past their own window, all in one transaction.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}

	job := &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		outbox:        params.Repository,
		deadLetters:   params.DeadLetters,
		keepOutbox:    daysOr(params.RetentionDays, defaultOutboxKeep),
		keepDead:      daysOr(params.DLQRetentionDays, defaultDeadKeep),
		terminalAfter: params.MinAttempts,
		now:           time.Now,
	}
	if job.terminalAfter <= 0 {
		job.terminalAfter = defaultTerminalAfter
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.keepOutbox)
	deadCutoff := now.Add(-j.keepDead)

	var prunedOutbox, prunedDead int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if prunedOutbox, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.terminalAfter); err != nil {
			return fmt.Errorf("outbox rows: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if prunedDead, err = j.deadLetters.DeleteFailedBefore(ctx, tx, deadCutoff); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":  outboxCutoff,
		"dlq_cutoff":     deadCutoff,
		"outbox_deleted": prunedOutbox,
		"dlq_deleted":    prunedDead,
	}), "outbox.retention_complete")
	return nil
}

func daysOr(days int, fallback time.Duration) time.Duration {
	if days <= 0 {
		return fallback
	}
	return time.Duration(days) * day
}
