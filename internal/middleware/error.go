package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"allhall/internal/domain"

	"go.uber.org/zap"
)

// RetryAfterSeconds is advertised to clients when a backing store is unavailable.
const RetryAfterSeconds = 2

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Kind      string                 `json:"kind,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// RespondWithError sends a structured error response
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails sends a structured error response with additional details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	writeError(w, statusCode, ErrorDetail{Message: message, Details: details})
}

func writeError(w http.ResponseWriter, statusCode int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	detail.Code = http.StatusText(statusCode)
	detail.Timestamp = time.Now().UTC().Format(time.RFC3339)
	json.NewEncoder(w).Encode(ErrorResponse{Error: detail})
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	details := make(map[string]interface{})
	details["validation_errors"] = errors

	writeError(w, http.StatusBadRequest, ErrorDetail{Message: "validation failed", Kind: "validation", Details: details})
}

// RespondWithDomainError maps a domain error kind to its HTTP status. Errors
// that match no kind are logged and reported as 500 without their text.
func RespondWithDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var fieldErr *domain.FieldError
	switch {
	case errors.As(err, &fieldErr):
		RespondWithValidationErrors(w, []ValidationError{{Field: fieldErr.Field, Message: fieldErr.Reason}})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrorDetail{Message: err.Error(), Kind: "validation"})
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, ErrorDetail{Message: "permission denied", Kind: "permission_denied"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrorDetail{Message: err.Error(), Kind: "not_found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrorDetail{Message: err.Error(), Kind: "invalid_transition"})
	case errors.Is(err, domain.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, ErrorDetail{Message: "cart is empty", Kind: "empty_cart"})
	case errors.Is(err, domain.ErrUnavailable):
		logger.Warn("Store unavailable", zap.Error(err))
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, ErrorDetail{Message: "service temporarily unavailable, retry later", Kind: "unavailable"})
	default:
		logger.Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorDetail{Message: "internal server error"})
	}
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.Stack("stack"),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
