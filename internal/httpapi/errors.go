package httpapi

import (
	"encoding/json"
	"net/http"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	store.CodeInsufficientFunds:      http.StatusUnprocessableEntity,
	store.CodeInvalidStateTransition: http.StatusConflict,
	store.CodeIdempotencyKeyReuse:    http.StatusConflict,
	store.CodeRequestInFlight:        http.StatusServiceUnavailable,
	store.CodeUnauthorized:           http.StatusForbidden,
	store.CodeUnauthenticated:        http.StatusUnauthorized,
	store.CodeProviderTransient:      http.StatusServiceUnavailable,
	store.CodeNotFound:               http.StatusNotFound,
	store.CodeNotEligible:            http.StatusUnprocessableEntity,
	store.CodeInvalidAmount:          http.StatusBadRequest,
	store.CodeReasonRequired:         http.StatusBadRequest,
	store.CodeBadRequest:             http.StatusBadRequest,
	store.CodeDuplicateTransaction:   http.StatusConflict,
	store.CodeConcurrentModification: http.StatusServiceUnavailable,
	store.CodeInternal:               http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status of a wire code.
//
// REQUEST_IN_FLIGHT maps to 503 with Retry-After: the same key is still being
// processed. Retrying with that key returns the original result once the
// first request finishes, or takes over the reservation after its lease.
func StatusForCode(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := store.Code(err)
	status := StatusForCode(code)
	message := err.Error()

	if code == store.CodeInternal {
		zap.L().Error("Request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, models.ErrorResponse{Error: models.ErrorBody{Code: code, Message: message}})
}
