package httppresentation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	appproduct "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	defaultLiveLimit = 20
	maxLiveLimit     = 100
)

type productResponse struct {
	ID         string          `json:"id"`
	MerchantID string          `json:"merchant_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockCount int             `json:"stock_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toProduct(p *product.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		MerchantID: p.MerchantID,
		Name:       p.Name,
		Price:      p.Price,
		StockCount: p.StockCount,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type productRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockCount int             `json:"stock_count"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.Create(r.Context(), appproduct.CreateInput{
		MerchantID: id,
		Name:       req.Name,
		Price:      req.Price,
		StockCount: req.StockCount,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProduct(p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.Update(r.Context(), appproduct.UpdateInput{
		MerchantID: id,
		ProductID:  chi.URLParam(r, "id"),
		Name:       req.Name,
		Price:      req.Price,
		StockCount: req.StockCount,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.svc.Catalog.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.AdjustStock(r.Context(), id, chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

var errLiveLimit = failure.Newf(failure.CodeInvalidArgument, "n must be between 1 and %d", maxLiveLimit)

func (h *Handler) handleLiveNotifications(w http.ResponseWriter, r *http.Request) {
	n := defaultLiveLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxLiveLimit {
			h.writeDomainError(w, r, errLiveLimit)
			return
		}
		n = v
	}
	recent, err := h.svc.Live.Recent(r.Context(), n)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if recent == nil {
		recent = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, recent)
}
