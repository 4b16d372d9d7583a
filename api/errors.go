package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	Available *int     `json:"available,omitempty"`
}

// paramError is a malformed query or path parameter.
type paramError struct {
	name  string
	value string
	want  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("%s %q is not %s", e.name, e.value, e.want)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err onto a status and body. Order matters: a lost stock
// race wraps an insufficient stock error but is a conflict, not a 422.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		param      *paramError
		validation *commerce.ValidationError
		stock      *commerce.InsufficientStockError
	)

	switch {
	case errors.As(err, &param):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid parameter", Message: err.Error()})

	case errors.Is(err, commerce.ErrStockDecrement), errors.Is(err, commerce.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Message: err.Error()})

	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
			Details: validation.FullMessages(),
		})

	case errors.As(err, &stock):
		available := stock.Available
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "Insufficient stock",
			Message:   err.Error(),
			Available: &available,
		})

	case errors.Is(err, commerce.ErrDuplicate):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Message: err.Error()})

	case commerce.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Resource not found", Message: err.Error()})

	case errors.Is(err, commerce.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		logging.Warn(r.Context()).Err(err).Str("path", r.URL.Path).Msg("request timed out")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Service unavailable", Message: "The request timed out, please retry"})

	default:
		logging.Error(r.Context()).Err(err).Str("path", r.URL.Path).Msg("internal server error")
		message := "Something went wrong"
		if h.exposeErrors() {
			message = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Message: message})
	}
}

func (h *Handler) exposeErrors() bool {
	return h.environment == "development" || h.environment == "test"
}
