package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"cafepos/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps core error kinds onto HTTP statuses. Unclassified
// errors are reported as 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrForbidden):
		writeError(w, r, err.Error(), "FORBIDDEN", http.StatusForbidden)
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, r, err.Error(), "INVALID_INPUT", http.StatusBadRequest)
	case errors.Is(err, core.ErrInvalidState):
		writeError(w, r, err.Error(), "INVALID_STATE", http.StatusConflict)
	case errors.Is(err, core.ErrInsufficientStock):
		writeError(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.Is(err, core.ErrPriceDeviation):
		writeError(w, r, err.Error(), "PRICE_DEVIATION", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrRefundExceeded):
		writeError(w, r, err.Error(), "REFUND_EXCEEDED", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrInvoiceVoid):
		writeError(w, r, err.Error(), "INVOICE_VOID", http.StatusConflict)
	case errors.Is(err, core.ErrHasCompletedPayments):
		writeError(w, r, err.Error(), "HAS_COMPLETED_PAYMENTS", http.StatusConflict)
	case errors.Is(err, core.ErrConcurrency):
		writeError(w, r, "operation conflicted with a concurrent request, retry", "CONCURRENCY", http.StatusConflict)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
