package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
	"github.com/codeshop/codeshop-backend/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

// verdict is what happens to a row after one publish attempt.
type verdict struct {
	outcome string
	reason  enums.OutboxDLQErrorReason
	cause   error
}

// judge maps a publish error to a verdict. A nil error means published.
func (s *Service) judge(event models.OutboxEvent, pubErr error) verdict {
	if pubErr == nil {
		return verdict{outcome: metrics.OutboxPublished}
	}
	var permanent registry.NonRetryableError
	if errors.As(pubErr, &permanent) {
		return verdict{outcome: metrics.OutboxDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, cause: pubErr}
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return verdict{
			outcome: metrics.OutboxDeadLettered,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			cause:   fmt.Errorf("max publish attempts reached: %w", pubErr),
		}
	}
	return verdict{outcome: metrics.OutboxRetried, cause: pubErr}
}

// dispatch publishes one row and records the verdict on it. The returned error
// is reserved for bookkeeping failures, which abort the whole batch.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	ctx = s.logg.WithFields(ctx, eventFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.apply(ctx, tx, event, verdict{metrics.OutboxDeadLettered, enums.OutboxDLQReasonUnroutable, err})
	}
	topic := resolved.Descriptor.Topic
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": resolved.Envelope.EventID, "topic": topic})

	pub := s.publishers(topic)
	if pub == nil {
		cause := fmt.Errorf("publisher not configured for topic %s", topic)
		return s.apply(ctx, tx, event, verdict{metrics.OutboxDeadLettered, enums.OutboxDLQReasonUnroutable, cause})
	}
	return s.apply(ctx, tx, event, s.judge(event, s.publish(ctx, pub, event, resolved)))
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) (string, error) {
	switch v.outcome {
	case metrics.OutboxPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "outbox.published")
	case metrics.OutboxRetried:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"attempt_count": event.AttemptCount + 1, "error": v.cause.Error()}), "outbox.publish_failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, v.cause); err != nil {
			return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	default:
		if err := s.deadLetter(ctx, tx, event, v.reason, v.cause); err != nil {
			return "", err
		}
	}
	return v.outcome, nil
}

func (s *Service) publish(ctx context.Context, pub publisher, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, buildMessage(event, resolved.Envelope))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", resolved.Descriptor.Topic))
	}
	_, err := result.Get(ctx)
	return err
}

// deadLetter copies the row into outbox_dlq and parks it at the attempt ceiling.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()}), "outbox.dead_lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"product_id":     event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
