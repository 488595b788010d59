package enums

import "testing"

func TestParseDeliveryType(t *testing.T) {
	got, err := ParseDeliveryType("manual")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DeliveryManual {
		t.Fatalf("expected manual, got %s", got)
	}
	if _, err := ParseDeliveryType("Manual"); err == nil {
		t.Fatalf("expected case-sensitive parse to reject Manual")
	}
	if DeliveryType("drone").IsValid() {
		t.Fatalf("unexpected valid delivery type")
	}
}

func TestParseUserRole(t *testing.T) {
	if _, err := ParseUserRole("admin"); err != nil {
		t.Fatalf("admin should parse: %v", err)
	}
	if _, err := ParseUserRole("owner"); err == nil {
		t.Fatalf("owner is not an account role")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventStockAssigned.IsValid() {
		t.Fatalf("stock_assigned should be valid")
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatalf("vendor_order is not an aggregate here")
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() {
		t.Fatalf("max_attempts should be a valid dlq reason")
	}
}
