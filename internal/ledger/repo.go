package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/postgres"
)

type Repo struct{ DB postgres.DB }

// Append writes one audit log entry. It takes a Querier so callers holding
// a transaction (order creation, shipment processing) append within it.
func Append(ctx context.Context, q postgres.Querier, sku string, mv Movement, delta, balanceAfter int, refType, notes string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO inventory_logs (sku, movement_type, quantity_delta, balance_after, reference_type, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		sku, string(mv), delta, balanceAfter, refType, notes)
	if err != nil {
		return fmt.Errorf("append inventory log: %w", err)
	}
	return nil
}

// lockStock locks the product row and returns its current physical stock.
func lockStock(ctx context.Context, q postgres.Querier, sku string) (int, error) {
	var stock int
	err := q.QueryRow(ctx, `SELECT stock_available FROM products WHERE sku=$1 FOR UPDATE`, sku).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("sku %s: %w", sku, catalog.ErrNotFound)
	}
	return stock, err
}

func setStock(ctx context.Context, q postgres.Querier, sku string, stock int) error {
	_, err := q.Exec(ctx, `UPDATE products SET stock_available=$1, updated_at=NOW() WHERE sku=$2`, stock, sku)
	return err
}

// Adjust applies a relative change to physical stock and logs it as a
// restock or reduction depending on sign. Returns the new balance.
func (r *Repo) Adjust(ctx context.Context, sku string, delta int, refType, notes string) (int, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	current, err := lockStock(ctx, tx, sku)
	if err != nil {
		return 0, err
	}
	newBalance := current + delta
	if newBalance < 0 {
		return 0, &NegativeStockError{SKU: sku, Delta: delta, Current: current}
	}
	if err := setStock(ctx, tx, sku, newBalance); err != nil {
		return 0, err
	}
	mv := MovementRestock
	if delta < 0 {
		mv = MovementReduction
	}
	if err := Append(ctx, tx, sku, mv, delta, newBalance, refType, notes); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// SetStock overwrites the physical counter with an absolute total and logs
// the implied delta as an adjustment. Returns the new balance.
func (r *Repo) SetStock(ctx context.Context, sku string, total int, refType, notes string) (int, error) {
	if total < 0 {
		return 0, &NegativeStockError{SKU: sku, Delta: total, Current: 0}
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	current, err := lockStock(ctx, tx, sku)
	if err != nil {
		return 0, err
	}
	if err := setStock(ctx, tx, sku, total); err != nil {
		return 0, err
	}
	if err := Append(ctx, tx, sku, MovementAdjustment, total-current, total, refType, notes); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// ConsumeTx permanently deducts shipped quantity inside the caller's
// transaction. The reserved demand becomes a physical reduction.
func ConsumeTx(ctx context.Context, q postgres.Querier, sku string, qty int, refType string) (int, error) {
	current, err := lockStock(ctx, q, sku)
	if err != nil {
		return 0, err
	}
	newBalance := current - qty
	if newBalance < 0 {
		return 0, &NegativeStockError{SKU: sku, Delta: -qty, Current: current}
	}
	if err := setStock(ctx, q, sku, newBalance); err != nil {
		return 0, err
	}
	if err := Append(ctx, q, sku, MovementReduction, -qty, newBalance, refType, ""); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Consume is ConsumeTx in its own transaction.
func (r *Repo) Consume(ctx context.Context, sku string, qty int, refType string) (int, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	balance, err := ConsumeTx(ctx, tx, sku, qty, refType)
	if err != nil {
		return 0, err
	}
	return balance, tx.Commit(ctx)
}

// History returns every log entry for a SKU in creation order.
func (r *Repo) History(ctx context.Context, sku string) ([]Entry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, movement_type, quantity_delta, balance_after, reference_type, notes, created_at
		FROM inventory_logs WHERE sku=$1 ORDER BY id`, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SKU, &e.Movement, &e.QuantityDelta, &e.BalanceAfter, &e.ReferenceType, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
