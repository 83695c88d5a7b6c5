package orders

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrNoItems         = errors.New("order needs at least one item")
)

type OrderType string

const (
	TypeInStock  OrderType = "in_stock"
	TypePreorder OrderType = "preorder"
)

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
	Status          Status          `json:"status"`
	OrderType       OrderType       `json:"order_type"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentStatus   string          `json:"payment_status,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []Item          `json:"items"`
}

// Item is one order line. Immutable once the order exists; shipment-driven
// stock effects reference it but never change it.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ItemInput struct {
	SKU       string           `json:"sku"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"` // defaults to catalog price
}

type CreateInput struct {
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	Items           []ItemInput     `json:"items"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	OrderType       OrderType       `json:"order_type"`
}
