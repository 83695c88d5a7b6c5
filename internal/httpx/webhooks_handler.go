package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/fulfillment"
	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/orders"
)

type EventProcessor interface {
	Process(ctx context.Context, raw []byte) (fulfillment.Event, error)
}

type WebhooksHandler struct {
	Processor EventProcessor
	Logger    *zap.Logger
}

func (h *WebhooksHandler) Register(r *chi.Mux) {
	r.Post("/api/webhooks/fulfillment", h.fulfillmentWebhook)
}

func (h *WebhooksHandler) fulfillmentWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ev, err := h.Processor.Process(ctx, raw)
	if err != nil {
		var (
			unsupported *fulfillment.UnsupportedEventError
			validation  *fulfillment.ValidationError
			negative    *ledger.NegativeStockError
		)
		switch {
		case errors.As(err, &unsupported), errors.As(err, &validation), errors.As(err, &negative):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, orders.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.Logger.Error("webhook processing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Webhook processed successfully for event: %s", ev.EventName()),
	})
}
