package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/orders"
	"collectibles-inventory/internal/postgres"
)

type Repo struct{ DB postgres.DB }

// ApplyShipment sets the order's carrier status and tracking number and
// permanently deducts the shipped quantities, all in one transaction. This
// is the path where the physical stock counter actually drops.
func (r *Repo) ApplyShipment(ctx context.Context, orderID, tracking, status string, items []ShipmentItem) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("order %s: %w", orderID, orders.ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status=$1, tracking_number=$2, updated_at=NOW() WHERE id=$3`,
		status, tracking, orderID)
	if err != nil {
		return err
	}

	sorted := make([]ShipmentItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })
	for _, it := range sorted {
		if _, err := ledger.ConsumeTx(ctx, tx, it.SKU, it.Quantity, "shipment"); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RecordWebhook appends the audit row for a processed event. Exactly one
// row per received event, success or failure.
func (r *Repo) RecordWebhook(ctx context.Context, eventType string, payload []byte, status, errMsg string) error {
	if status == "success" {
		_, err := r.DB.Exec(ctx, `
			INSERT INTO webhooks (event_type, payload, status, error_message, processed_at, created_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NOW(), NOW())`,
			eventType, payload, status, errMsg)
		return err
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO webhooks (event_type, payload, status, error_message, processed_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULL, NOW())`,
		eventType, payload, status, errMsg)
	return err
}
