package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateProduct OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProduct,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventStockAssigned       OutboxEventType = "stock_assigned"
	EventStockRestocked      OutboxEventType = "stock_restocked"
	EventStockDeleted        OutboxEventType = "stock_deleted"
	EventStockOverridden     OutboxEventType = "stock_overridden"
	EventStockRecounted      OutboxEventType = "stock_recounted"
	EventDeliveryTypeChanged OutboxEventType = "delivery_type_changed"
	EventProductCreated      OutboxEventType = "product_created"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockAssigned,
	EventStockRestocked,
	EventStockDeleted,
	EventStockOverridden,
	EventStockRecounted,
	EventDeliveryTypeChanged,
	EventProductCreated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
