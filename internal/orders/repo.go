package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/postgres"
)

type Repo struct{ DB postgres.DB }

// Create validates, reserves and persists an order atomically. For in_stock
// orders each product row is locked before the availability check, so two
// concurrent orders cannot both claim the last unit of a SKU. Either the
// whole order (header, items, reservation log entries) commits or nothing
// does.
func (r *Repo) Create(ctx context.Context, in CreateInput) (string, decimal.Decimal, error) {
	if len(in.Items) == 0 {
		return "", decimal.Zero, ErrNoItems
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return "", decimal.Zero, fmt.Errorf("sku %s: %w", it.SKU, ErrInvalidQuantity)
		}
	}
	if in.OrderType == "" {
		in.OrderType = TypeInStock
	}

	// lock product rows in SKU order to avoid deadlocks between
	// concurrent multi-item orders; item rows are stored in request order
	lockOrder := make([]int, len(in.Items))
	for i := range lockOrder {
		lockOrder[i] = i
	}
	sort.Slice(lockOrder, func(a, b int) bool {
		return in.Items[lockOrder[a]].SKU < in.Items[lockOrder[b]].SKU
	})

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	type line struct {
		input     ItemInput
		productID string
		name      string
		unitPrice decimal.Decimal
		total     decimal.Decimal
		stock     int
	}

	subtotal := decimal.Zero
	lines := make([]line, len(in.Items))
	for _, idx := range lockOrder {
		it := in.Items[idx]
		var (
			productID, name string
			price           decimal.Decimal
			stock           int
		)
		err := tx.QueryRow(ctx,
			`SELECT id, name, price, stock_available FROM products WHERE sku=$1 FOR UPDATE`,
			it.SKU).Scan(&productID, &name, &price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", decimal.Zero, fmt.Errorf("sku %s: %w", it.SKU, catalog.ErrNotFound)
		}
		if err != nil {
			return "", decimal.Zero, err
		}

		if in.OrderType == TypeInStock {
			var allocated int
			err := tx.QueryRow(ctx, `
				SELECT COALESCE(SUM(oi.quantity), 0)
				FROM order_items oi
				JOIN orders o ON o.id = oi.order_id
				WHERE oi.sku = $1 AND o.status = ANY($2)`,
				it.SKU, activeStatuses).Scan(&allocated)
			if err != nil {
				return "", decimal.Zero, err
			}
			available := stock - allocated
			if available < it.Quantity {
				return "", decimal.Zero, &ledger.InsufficientStockError{
					SKU: it.SKU, Requested: it.Quantity, Available: available,
				}
			}
		}

		unit := price
		if it.UnitPrice != nil {
			unit = *it.UnitPrice
		}
		lineTotal := unit.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		lines[idx] = line{input: it, productID: productID, name: name, unitPrice: unit, total: lineTotal, stock: stock}
	}

	shipping := shippingCost(subtotal)
	total := subtotal.Add(shipping)
	orderID := newOrderID()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, customer_name, customer_email, customer_phone,
			shipping_address, subtotal, shipping_cost, total_amount,
			payment_method, payment_status, order_type, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`,
		orderID, orderID, in.CustomerName, in.CustomerEmail, in.CustomerPhone,
		in.ShippingAddress, subtotal, shipping, total,
		in.PaymentMethod, in.PaymentStatus, string(in.OrderType), string(StatusPending))
	if err != nil {
		return "", decimal.Zero, err
	}

	for _, l := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, sku, product_name, quantity, unit_price, total_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
			orderID, l.productID, l.input.SKU, l.name, l.input.Quantity, l.unitPrice, l.total)
		if err != nil {
			return "", decimal.Zero, err
		}
		if in.OrderType == TypeInStock {
			// physical stock is untouched by a reservation; the entry
			// records the claim with the balance it was made against
			err = ledger.Append(ctx, tx, l.input.SKU, ledger.MovementReservation,
				-l.input.Quantity, l.stock, "order", "reserved for "+orderID)
			if err != nil {
				return "", decimal.Zero, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", decimal.Zero, err
	}
	return orderID, total, nil
}

// UpdateStatus sets a recognized status on an order. Cancelling an active
// in_stock order writes release entries for its items; availability itself
// recovers automatically since the computation filters by status.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, st Status) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		current   Status
		orderType OrderType
	)
	err = tx.QueryRow(ctx, `SELECT status, order_type FROM orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&current, &orderType)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, string(st), orderID)
	if err != nil {
		return err
	}

	if st == StatusCancelled && current.Active() && orderType == TypeInStock {
		if err := releaseItems(ctx, tx, orderID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func releaseItems(ctx context.Context, tx pgx.Tx, orderID string) error {
	rows, err := tx.Query(ctx,
		`SELECT sku, quantity FROM order_items WHERE order_id=$1 ORDER BY sku`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rec struct {
		sku string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.sku, &x.qty); err != nil {
			return err
		}
		recs = append(recs, x)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock_available FROM products WHERE sku=$1 FOR UPDATE`, x.sku).Scan(&stock); err != nil {
			return err
		}
		if err := ledger.Append(ctx, tx, x.sku, ledger.MovementRelease,
			x.qty, stock, "order", "released by cancellation of "+orderID); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `
	id, order_number, customer_name, customer_email, customer_phone,
	shipping_address, status, order_type, payment_method, payment_status,
	subtotal, shipping_cost, total_amount, tracking_number, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.ShippingAddress, &o.Status, &o.OrderType, &o.PaymentMethod, &o.PaymentStatus,
		&o.Subtotal, &o.ShippingCost, &o.TotalAmount, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, sku, product_name, quantity, unit_price, total_price, created_at
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKU, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	index := map[string]int{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	itemRows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, sku, product_name, quantity, unit_price, total_price, created_at
		FROM order_items ORDER BY order_id, id`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it Item
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKU, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[it.OrderID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, itemRows.Err()
}
