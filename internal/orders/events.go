package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCreated = "OrderCreated"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemSummary struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	CustomerEmail string          `json:"customer_email"`
	OrderType     OrderType       `json:"order_type"`
	Items         []ItemSummary   `json:"items"`
	Total         decimal.Decimal `json:"total"`
}
