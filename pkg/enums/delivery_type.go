package enums

import "fmt"

// DeliveryType controls whether a product's stock mirrors its unused codes.
type DeliveryType string

const (
	// DeliveryAutomatic hands out codes from the stock catalog.
	DeliveryAutomatic DeliveryType = "automatic"
	// DeliveryManual is fulfilled by hand and always reads as available.
	DeliveryManual DeliveryType = "manual"
)

var validDeliveryTypes = []DeliveryType{
	DeliveryAutomatic,
	DeliveryManual,
}

// String implements fmt.Stringer.
func (d DeliveryType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryType.
func (d DeliveryType) IsValid() bool {
	for _, candidate := range validDeliveryTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryType converts raw input into a DeliveryType.
func ParseDeliveryType(value string) (DeliveryType, error) {
	for _, candidate := range validDeliveryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery type %q", value)
}
