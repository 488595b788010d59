package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db/models"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/outbox/payloads"
	"github.com/codeshop/codeshop-backend/pkg/types"
)

const stockTopic = "stock-topic"

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{StockTopic: stockTopic})
	require.NoError(t, err)
	return reg
}

// row builds a stored outbox event whose envelope wraps data.
func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	raw, ok := data.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{EventType: eventType, AggregateType: aggregate, AggregateID: aggregateID, Payload: envelope}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	productID, itemID := uuid.New(), uuid.New()
	event := row(t, enums.EventStockAssigned, enums.AggregateProduct, productID, payloads.StockAssignedEvent{
		ProductID:    productID,
		UserID:       uuid.New(),
		Quantity:     1,
		StockItemIDs: []uuid.UUID{itemID},
		Stock:        types.FiniteStock(4),
	})

	resolved, err := testRegistry(t).Resolve(event)
	require.NoError(t, err)

	assert.Equal(t, stockTopic, resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())

	payload, ok := resolved.Payload.(*payloads.StockAssignedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, []uuid.UUID{itemID}, payload.StockItemIDs)
	assert.True(t, payload.Stock.Equal(types.FiniteStock(4)), "stock %s", payload.Stock)
}

func TestRegistryCoversEveryEventType(t *testing.T) {
	reg := testRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventStockAssigned,
		enums.EventStockRestocked,
		enums.EventStockDeleted,
		enums.EventStockOverridden,
		enums.EventStockRecounted,
		enums.EventDeliveryTypeChanged,
		enums.EventProductCreated,
	} {
		assert.Contains(t, reg.entries, eventType)
	}
	assert.Equal(t, []string{stockTopic}, reg.Topics())
}

func TestResolveRejectsPermanently(t *testing.T) {
	cases := map[string]models.OutboxEvent{
		"unknown event":      row(t, "order_created", enums.AggregateProduct, uuid.New(), []byte(`{"reason":"none"}`)),
		"aggregate mismatch": row(t, enums.EventStockRestocked, "user", uuid.New(), []byte(`{"added":1}`)),
		"nil aggregate id":   row(t, enums.EventStockRestocked, enums.AggregateProduct, uuid.Nil, []byte(`{}`)),
		"null payload":       row(t, enums.EventStockDeleted, enums.AggregateProduct, uuid.New(), []byte(`null`)),
		"bad stock literal":  row(t, enums.EventStockOverridden, enums.AggregateProduct, uuid.New(), []byte(`{"stock":"lots"}`)),
		"broken envelope":    {EventType: enums.EventStockDeleted, AggregateType: enums.AggregateProduct, AggregateID: uuid.New(), Payload: json.RawMessage(`{`)},
	}

	reg := testRegistry(t)
	for name, event := range cases {
		_, err := reg.Resolve(event)
		var permanentErr NonRetryableError
		assert.ErrorAs(t, err, &permanentErr, name)
	}
}

func TestNewEventRegistryValidation(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err, "missing topic")

	desc := productEvent[payloads.StockDeletedEvent](enums.EventStockDeleted, "t")
	_, err = newEventRegistry(desc, desc)
	assert.Error(t, err, "duplicate event type")

	_, err = newEventRegistry(EventDescriptor{EventType: enums.EventStockDeleted})
	assert.Error(t, err, "missing payload factory")
}

func TestNonRetryableError(t *testing.T) {
	cause := errors.New("bad row")
	err := NewNonRetryableError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad row", err.Error())
	assert.NotEmpty(t, NonRetryableError{}.Error())
}
