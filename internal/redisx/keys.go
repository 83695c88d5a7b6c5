package redisx

import "time"

const (
	// Dedup for fulfillment events: dedup:webhook:{sha256 of raw payload}
	KeyWebhookDedup = "dedup:webhook:%s"

	// Cache for GET /api/orders/{id}: order:{order_id} -> order JSON
	KeyOrderCache = "order:%s"
)

var (
	TTLDedup      = 48 * time.Hour
	TTLOrderCache = 5 * time.Minute
)
