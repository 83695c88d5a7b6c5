package ledger

import "fmt"

// InsufficientStockError is returned when a reservation asks for more than
// the currently available (physical minus allocated) stock of a SKU.
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.SKU, e.Requested, e.Available)
}

// NegativeStockError is returned when an adjustment or consumption would
// drive the physical stock counter below zero.
type NegativeStockError struct {
	SKU     string
	Delta   int
	Current int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("stock for %s cannot go negative: current %d, delta %d",
		e.SKU, e.Current, e.Delta)
}
