package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Weight         decimal.Decimal `json:"weight"`
	EditionSize    int             `json:"edition_size"`
	StockAvailable int             `json:"stock_available"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ProductView is a Product plus the derived stock fields. AllocatedStock
// counts quantities on orders that are still pending/confirmed/processing;
// AvailableStock is what is actually safe to sell right now.
type ProductView struct {
	Product
	AllocatedStock int `json:"allocated_stock"`
	AvailableStock int `json:"available_stock"`
	TotalSold      int `json:"total_sold"`
}
