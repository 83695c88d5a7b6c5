package fulfillment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"collectibles-inventory/internal/redisx"
)

type OrderStore interface {
	ApplyShipment(ctx context.Context, orderID, tracking, status string, items []ShipmentItem) error
}

type StockAdjuster interface {
	Adjust(ctx context.Context, sku string, delta int, refType, notes string) (int, error)
	SetStock(ctx context.Context, sku string, total int, refType, notes string) (int, error)
}

type WebhookLog interface {
	RecordWebhook(ctx context.Context, eventType string, payload []byte, status, errMsg string) error
}

type Deduper interface {
	MarkIfNew(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type OrderCache interface {
	Invalidate(ctx context.Context, orderID string) error
}

// Processor is the single entry point that drives order state and stock
// after order creation. Both the HTTP webhook and the kafka consumer feed
// raw event payloads into Process.
type Processor struct {
	Orders OrderStore
	Stock  StockAdjuster
	Log    WebhookLog
	Dedup  Deduper
	Cache  OrderCache // optional; shipment updates drop the cached order
	Logger *zap.Logger
}

// Process decodes and applies one fulfillment event. Exactly one webhook
// record is written per call, success or failure; failure to write it is
// logged but never surfaces as the primary error. The returned Event is
// non-nil whenever the payload decoded, so callers can react to what was
// processed.
func (p *Processor) Process(ctx context.Context, raw []byte) (Event, error) {
	ev, err := Decode(raw)
	if err != nil {
		p.record(ctx, eventName(raw), raw, "failed", err.Error())
		return nil, err
	}

	// redelivered payloads are acknowledged but applied only once
	key := fmt.Sprintf(redisx.KeyWebhookDedup, payloadHash(raw))
	fresh, derr := p.Dedup.MarkIfNew(ctx, key)
	if derr != nil {
		// dedup is protection, not a dependency; process anyway
		p.Logger.Warn("webhook dedup unavailable", zap.Error(derr))
		fresh = true
	}
	if !fresh {
		p.Logger.Info("duplicate fulfillment event skipped",
			zap.String("event", ev.EventName()))
		p.record(ctx, ev.EventName(), raw, "success", "duplicate delivery, skipped")
		return ev, nil
	}

	if err := p.apply(ctx, ev); err != nil {
		// unmark so the upstream's retry of this payload is not treated
		// as a duplicate of the failed attempt
		if rerr := p.Dedup.Release(ctx, key); rerr != nil {
			p.Logger.Warn("webhook dedup release failed", zap.Error(rerr))
		}
		p.record(ctx, ev.EventName(), raw, "failed", err.Error())
		return ev, err
	}
	p.record(ctx, ev.EventName(), raw, "success", "")
	return ev, nil
}

func (p *Processor) apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case *ShipmentUpdated:
		p.Logger.Info("applying shipment update",
			zap.String("order_id", e.OrderID),
			zap.String("status", e.Status),
			zap.Int("items", len(e.Items)))
		if err := p.Orders.ApplyShipment(ctx, e.OrderID, e.TrackingNumber, e.Status, e.Items); err != nil {
			return err
		}
		if p.Cache != nil {
			if cerr := p.Cache.Invalidate(ctx, e.OrderID); cerr != nil {
				p.Logger.Warn("order cache invalidate failed",
					zap.String("order_id", e.OrderID), zap.Error(cerr))
			}
		}
		return nil

	case *InventoryRestocked:
		for _, it := range e.Items {
			var err error
			switch {
			case it.NewTotal != nil:
				_, err = p.Stock.SetStock(ctx, it.SKU, *it.NewTotal, "webhook", "restock event (absolute)")
			case it.QuantityAdded != 0:
				_, err = p.Stock.Adjust(ctx, it.SKU, it.QuantityAdded, "webhook", "restock event")
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
	// Decode only produces the variants above
	return &UnsupportedEventError{Event: ev.EventName()}
}

func (p *Processor) record(ctx context.Context, eventType string, payload []byte, status, errMsg string) {
	if err := p.Log.RecordWebhook(ctx, eventType, payload, status, errMsg); err != nil {
		p.Logger.Error("webhook record write failed",
			zap.String("event", eventType),
			zap.Error(err))
	}
}

func payloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
