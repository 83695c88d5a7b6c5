package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShippingFee       = decimal.RequireFromString("15.99")
)

// shippingCost: flat fee, waived above the free-shipping threshold.
func shippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(freeShippingThreshold) {
		return decimal.Zero
	}
	return flatShippingFee
}

// newOrderID generates ids like ORD-1735689600000-A3F9C.
func newOrderID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:5])
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}
