package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"collectibles-inventory/internal/catalog"
	kafkax "collectibles-inventory/internal/kafka"
	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/orders"
	"collectibles-inventory/internal/redisx"
)

type OrderStore interface {
	Create(ctx context.Context, in orders.CreateInput) (string, decimal.Decimal, error)
	Get(ctx context.Context, orderID string) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, st orders.Status) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Store    OrderStore
	Producer Publisher
	Redis    *redis.Client
	Logger   *zap.Logger
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Post("/api/orders", h.createOrder)
	r.Patch("/api/orders/{id}/status", h.updateStatus)
}

type createOrderResp struct {
	Message string          `json:"message"`
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.CustomerName == "" || in.CustomerEmail == "" || len(in.Items) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, total, err := h.Store.Create(ctx, in)
	if err != nil {
		var insufficient *ledger.InsufficientStockError
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &insufficient):
			writeError(w, http.StatusBadRequest, insufficient.Error())
		case errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, orders.ErrNoItems):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.Logger.Error("create order failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.publishCreated(r, orderID, total, in)
	writeJSON(w, http.StatusCreated, createOrderResp{
		Message: "Order created successfully",
		OrderID: orderID,
		Total:   total,
	})
}

func (h *OrdersHandler) publishCreated(r *http.Request, orderID string, total decimal.Decimal, in orders.CreateInput) {
	items := make([]orders.ItemSummary, 0, len(in.Items))
	for _, it := range in.Items {
		s := orders.ItemSummary{SKU: it.SKU, Quantity: it.Quantity}
		if it.UnitPrice != nil {
			s.UnitPrice = *it.UnitPrice
		}
		items = append(items, s)
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:       orderID,
			CustomerEmail: in.CustomerEmail,
			OrderType:     in.OrderType,
			Items:         items,
			Total:         total,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Store.List(ctx)
	if err != nil {
		h.Logger.Error("list orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if os == nil {
		os = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderCache, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Store.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.Logger.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	b, _ := json.Marshal(o)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	if err := h.Store.UpdateStatus(ctx, orderID, st); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.Logger.Error("update status failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderCache, orderID)).Err()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Order status updated successfully",
		"status":  string(st),
	})
}
