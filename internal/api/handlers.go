package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader may carry the request id of a stock adjustment.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handlers struct {
	inventory *inventory.Service
	logger    *zap.Logger
}

func NewHandlers(inventorySvc *inventory.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{inventory: inventorySvc, logger: logger}
}

// productRequest is the body of POST and PUT /products. Quantity is decoded as
// a number literal so that fractions can be rejected instead of truncated.
type productRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *json.Number     `json:"quantity"`
}

type stockRequest struct {
	Quantity  *json.Number `json:"quantity"`
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
}

type CreateProductResponse struct {
	Message   string          `json:"message"`
	ProductID string          `json:"productId"`
	Product   product.Product `json:"product"`
}

type StockResponse struct {
	ProductID        string `json:"productId"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
	LowStock         bool   `json:"lowStock"`
	Replayed         bool   `json:"replayed,omitempty"`
}

type LowStockResponse struct {
	Threshold int               `json:"threshold"`
	Count     int               `json:"count"`
	Products  []product.Product `json:"products"`
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Price == nil {
		respondJSONError(w, KindValidation, "price is required", http.StatusBadRequest)
		return
	}
	if req.Quantity == nil {
		respondJSONError(w, KindValidation, "quantity is required", http.StatusBadRequest)
		return
	}
	quantity, err := parseWholeNumber(*req.Quantity)
	if err != nil {
		respondJSONError(w, KindValidation, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.inventory.CreateProduct(r.Context(), principal(r), inventory.CreateProduct{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       *req.Price,
		Quantity:    quantity,
	})
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateProductResponse{
		Message:   "Product created",
		ProductID: p.ID,
		Product:   p,
	})
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.ListProducts(r.Context(), principal(r))
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}
	if len(products) == 0 {
		respondJSONError(w, KindNotFound, "no products found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.inventory.GetProduct(r.Context(), principal(r), id)
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Price == nil {
		respondJSONError(w, KindValidation, "price is required", http.StatusBadRequest)
		return
	}
	if req.Quantity == nil {
		respondJSONError(w, KindValidation, "quantity is required", http.StatusBadRequest)
		return
	}
	quantity, err := parseWholeNumber(*req.Quantity)
	if err != nil {
		respondJSONError(w, KindValidation, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := inventory.UpdateProduct{
		ProductID:   id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       *req.Price,
		Quantity:    &quantity,
	}

	p, err := h.inventory.UpdateProduct(r.Context(), principal(r), cmd)
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	if err := h.inventory.DeleteProduct(r.Context(), principal(r), id); err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// Stock Handlers

func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/stock")

	var req stockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondJSONError(w, KindValidation, "quantity is required", http.StatusBadRequest)
		return
	}
	quantity, err := parseWholeNumber(*req.Quantity)
	if err != nil {
		respondJSONError(w, KindValidation, err.Error(), http.StatusBadRequest)
		return
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	change, err := h.inventory.AdjustStock(r.Context(), principal(r), inventory.AdjustStock{
		ProductID: id,
		Type:      req.Type,
		Quantity:  quantity,
		RequestID: requestID,
	})
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, StockResponse{
		ProductID:        change.ProductID,
		PreviousQuantity: change.PreviousQuantity,
		NewQuantity:      change.NewQuantity,
		LowStock:         change.LowStock,
		Replayed:         change.Replayed,
	})
}

func (h *Handlers) GetLowStock(w http.ResponseWriter, r *http.Request) {
	report, err := h.inventory.LowStockProducts(r.Context(), principal(r))
	if err != nil {
		respondServiceError(h.logger, w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, LowStockResponse{
		Threshold: report.Threshold,
		Count:     len(report.Products),
		Products:  report.Products,
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSONError(w, KindValidation, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// parseWholeNumber accepts only integer literals in the int32 range.
func parseWholeNumber(n json.Number) (int, error) {
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quantity must be a whole number, got %s", n)
	}
	if v > stock.MaxQuantity || v < -stock.MaxQuantity {
		return 0, fmt.Errorf("quantity %s is out of range", n)
	}
	return int(v), nil
}

func extractPathParam(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
