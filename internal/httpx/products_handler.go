package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/ledger"
)

type Catalog interface {
	List(ctx context.Context, lowStockOnly bool) ([]catalog.ProductView, error)
	GetBySKU(ctx context.Context, sku string) (catalog.ProductView, error)
}

type InventoryAdjuster interface {
	Adjust(ctx context.Context, sku string, delta int, refType, notes string) (int, error)
	History(ctx context.Context, sku string) ([]ledger.Entry, error)
}

type ProductsHandler struct {
	Catalog Catalog
	Ledger  InventoryAdjuster
	Logger  *zap.Logger
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/api/products", h.listProducts)
	r.Get("/api/products/{sku}", h.getProduct)
	r.Patch("/api/products/{sku}/inventory", h.adjustInventory)
	r.Get("/api/products/{sku}/inventory", h.inventoryHistory)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lowStock := r.URL.Query().Get("low_stock") == "true"
	ps, err := h.Catalog.List(ctx, lowStock)
	if err != nil {
		h.Logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ps == nil {
		ps = []catalog.ProductView{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sku := chi.URLParam(r, "sku")
	p, err := h.Catalog.GetBySKU(ctx, sku)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.Logger.Error("get product failed", zap.String("sku", sku), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) inventoryHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sku := chi.URLParam(r, "sku")
	entries, err := h.Ledger.History(ctx, sku)
	if err != nil {
		h.Logger.Error("inventory history failed", zap.String("sku", sku), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	// a replay mismatch means someone wrote stock outside the ledger
	if err := ledger.CheckBalances(entries); err != nil {
		h.Logger.Error("inventory log drift", zap.String("sku", sku), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sku":  sku,
		"logs": entries,
	})
}

type adjustInventoryReq struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
}

func (h *ProductsHandler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var req adjustInventoryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Quantity == 0 {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sku := chi.URLParam(r, "sku")
	notes := strings.TrimSpace(strings.TrimSpace(req.Reason) + " " + strings.TrimSpace(req.Notes))
	newStock, err := h.Ledger.Adjust(ctx, sku, req.Quantity, "adjustment", notes)
	if err != nil {
		var negative *ledger.NegativeStockError
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		case errors.As(err, &negative):
			writeError(w, http.StatusBadRequest, negative.Error())
		default:
			h.Logger.Error("inventory adjust failed", zap.String("sku", sku), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Stock updated successfully",
		"new_stock": newStock,
	})
}
