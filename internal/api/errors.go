package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/domain/product"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/domain/user"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/inventory"
	"go.uber.org/zap"
)

// Error kinds returned in the "error" field of failed responses.
const (
	KindValidation         = "validation_error"
	KindNotFound           = "not_found"
	KindInsufficientStock  = "insufficient_stock"
	KindConcurrentUpdate   = "concurrent_update"
	KindStorageUnavailable = "storage_unavailable"
	KindUnauthorized       = "unauthorized"
	KindForbidden          = "forbidden"
	KindConflict           = "conflict"
	KindInternal           = "internal_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForError maps a service error to its HTTP status and error kind.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, product.ErrValidation),
		errors.Is(err, user.ErrValidation),
		errors.Is(err, stock.ErrInvalidAdjustment):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, stock.ErrInsufficientStock):
		return http.StatusConflict, KindInsufficientStock
	case errors.Is(err, stock.ErrConcurrentUpdate):
		return http.StatusConflict, KindConcurrentUpdate
	case errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict, KindConflict
	case errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, inventory.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, KindUnauthorized
	case errors.Is(err, inventory.ErrForbidden):
		return http.StatusForbidden, KindForbidden
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, KindStorageUnavailable
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, kind, message string, status int) {
	respondJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// respondServiceError writes err using its mapped status. Internal errors are
// reported without their detail.
func respondServiceError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusForError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}
	}
	respondJSONError(w, kind, message, status)
}
