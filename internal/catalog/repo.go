package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"collectibles-inventory/internal/postgres"
)

type Repo struct{ DB postgres.DB }

const viewColumns = `
	p.id, p.sku, p.name, p.description, p.category, p.price, p.weight,
	p.edition_size, p.stock_available, p.status, p.created_at, p.updated_at,
	COALESCE(SUM(oi.quantity) FILTER (WHERE o.status IN ('pending','confirmed','processing')), 0) AS allocated_stock,
	COALESCE(SUM(oi.quantity) FILTER (WHERE o.status IN ('shipped','delivered')), 0) AS total_sold`

// List returns every product with its derived stock fields. With
// lowStockOnly, products holding less than 10% of their edition are returned.
func (r *Repo) List(ctx context.Context, lowStockOnly bool) ([]ProductView, error) {
	where := ""
	if lowStockOnly {
		where = "WHERE (p.stock_available::float / p.edition_size) < 0.1"
	}
	q := fmt.Sprintf(`
		SELECT %s
		FROM products p
		LEFT JOIN order_items oi ON oi.sku = p.sku
		LEFT JOIN orders o ON o.id = oi.order_id
		%s
		GROUP BY p.id
		ORDER BY p.created_at DESC`, viewColumns, where)

	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repo) GetBySKU(ctx context.Context, sku string) (ProductView, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM products p
		LEFT JOIN order_items oi ON oi.sku = p.sku
		LEFT JOIN orders o ON o.id = oi.order_id
		WHERE p.sku = $1
		GROUP BY p.id`, viewColumns)

	rows, err := r.DB.Query(ctx, q, sku)
	if err != nil {
		return ProductView{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ProductView{}, err
		}
		return ProductView{}, fmt.Errorf("sku %s: %w", sku, ErrNotFound)
	}
	return scanView(rows)
}

func scanView(row pgx.Row) (ProductView, error) {
	var v ProductView
	err := row.Scan(
		&v.ID, &v.SKU, &v.Name, &v.Description, &v.Category, &v.Price, &v.Weight,
		&v.EditionSize, &v.StockAvailable, &v.Status, &v.CreatedAt, &v.UpdatedAt,
		&v.AllocatedStock, &v.TotalSold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductView{}, ErrNotFound
		}
		return ProductView{}, err
	}
	v.AvailableStock = v.StockAvailable - v.AllocatedStock
	return v, nil
}
