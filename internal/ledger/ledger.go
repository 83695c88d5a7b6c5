// Package ledger owns physical stock mutations and the append-only
// inventory audit log. Every mutation runs with the product row locked and
// writes exactly one log entry carrying the resulting balance, so the
// history of a SKU can be verified by replay.
package ledger

import (
	"fmt"
	"time"
)

type Movement string

const (
	MovementRestock     Movement = "restock"
	MovementReduction   Movement = "reduction"
	MovementReservation Movement = "reservation"
	MovementRelease     Movement = "release"
	MovementAdjustment  Movement = "adjustment"
)

// Entry is one inventory log row. Entries are never updated or deleted.
type Entry struct {
	ID            int64     `json:"id"`
	SKU           string    `json:"sku"`
	Movement      Movement  `json:"movement_type"`
	QuantityDelta int       `json:"quantity_delta"`
	BalanceAfter  int       `json:"balance_after"`
	ReferenceType string    `json:"reference_type"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// physical reports whether the movement changes stock_available.
// Reservations and releases record allocation decisions only.
func (m Movement) physical() bool {
	switch m {
	case MovementRestock, MovementReduction, MovementAdjustment:
		return true
	}
	return false
}

// CheckBalances replays entries (in creation order) and verifies that each
// recorded balance follows from the previous one. The first entry's balance
// is taken as the starting point.
func CheckBalances(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	balance := entries[0].BalanceAfter
	for i, e := range entries[1:] {
		want := balance
		if e.Movement.physical() {
			want = balance + e.QuantityDelta
		}
		if e.BalanceAfter != want {
			return fmt.Errorf("entry %d (%s %+d): balance_after=%d, replay gives %d",
				i+1, e.Movement, e.QuantityDelta, e.BalanceAfter, want)
		}
		balance = e.BalanceAfter
	}
	return nil
}
