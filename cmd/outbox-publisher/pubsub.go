package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// buildMessage ships the stored envelope untouched and mirrors its routing
// fields into attributes so subscribers can filter without decoding.
func buildMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if envelope.Version > 0 {
		attrs["schema_version"] = strconv.Itoa(envelope.Version)
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: orderingKey(event),
	}
}

// orderingKey groups a product's stock events so subscribers with ordering
// enabled see counters in commit order.
func orderingKey(event models.OutboxEvent) string {
	if event.AggregateType != enums.AggregateProduct {
		return ""
	}
	return event.AggregateID.String()
}

func topicPublishers(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &gcpPublisher{pub: p}
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		result:      p.pub.Publish(ctx, msg),
		pub:         p.pub,
		orderingKey: msg.OrderingKey,
	}
}

type gcpPublishResult struct {
	result      *gcppubsub.PublishResult
	pub         *gcppubsub.Publisher
	orderingKey string
}

// Get waits for the server ack. A failed ordered publish pauses its key, so the
// key is resumed to let the next poll retry it.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.result == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.result.Get(ctx)
	if err != nil && r.orderingKey != "" {
		r.pub.ResumePublish(r.orderingKey)
	}
	return id, err
}
