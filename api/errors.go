package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/tablebill"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var ve tablebill.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var gwErr *tablebill.GatewayError
	switch {
	case errors.Is(err, tablebill.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tablebill.ErrSplitActive), tablebill.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, tablebill.ErrIntentExpired), tablebill.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tablebill.ErrAlreadyExists), errors.Is(err, tablebill.ErrAmountChanged):
		return http.StatusConflict
	case tablebill.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &gwErr), errors.Is(err, tablebill.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
