package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ItemID    string `json:"item_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_input"})
}

// writeError maps the engine's error kinds to HTTP statuses. Anything
// unrecognised is logged and reported as 500 without its message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var stock *orders.StockError
	switch {
	case errors.As(err, &stock):
		avail := stock.Available
		writeJSON(w, http.StatusConflict, errorBody{
			Error: err.Error(), Code: "insufficient_stock",
			ItemID: stock.ItemID, Requested: stock.Requested, Available: &avail,
		})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "forbidden"})
	case errors.Is(err, orders.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_input"})
	case errors.Is(err, orders.ErrItemInactive):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "item_inactive"})
	case errors.Is(err, orders.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "insufficient_stock"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, redisx.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "request_in_flight"})
	case orders.Retryable(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "contention"})
	default:
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
