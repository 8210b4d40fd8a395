// Package errors provides error handling and HTTP status code mapping for
// the dashboard API.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/crm"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/metrics"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidRange   ErrorCode = "INVALID_RANGE"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeTenantNotFound ErrorCode = "TENANT_NOT_FOUND"
	ErrorCodeRemoteDown     ErrorCode = "REMOTE_UNAVAILABLE"
)

// ErrorResponse is the error envelope; ok is always false.
type ErrorResponse struct {
	OK        bool      `json:"ok"`
	ErrorCode ErrorCode `json:"error_code"`
	Error     string    `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{metrics: m, logger: logger}
}

// HandleError maps an internal error to an HTTP response. Remote platform
// failures are classified by their typed kind, not by string inspection.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	var remoteErr *crm.RemoteError
	switch {
	case errors.As(err, &remoteErr) && remoteErr.Kind == crm.KindRateLimited:
		h.WriteErrorResponse(w, http.StatusTooManyRequests, ErrorCodeRateLimited, err.Error(), requestID)
	case errors.Is(err, crm.ErrUnavailable):
		h.WriteErrorResponse(w, http.StatusBadGateway, ErrorCodeRemoteDown, err.Error(), requestID)
	default:
		h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, err.Error(), requestID)
	}
}

// WriteErrorResponse writes a formatted error response.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	if h.metrics != nil {
		h.metrics.RecordError(string(errorCode))
	}

	resp := ErrorResponse{
		OK:        false,
		ErrorCode: errorCode,
		Error:     message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteRangeError writes an invalid-range error response.
func (h *Handler) WriteRangeError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRange, message, requestID)
}

// WriteNotFound writes a not-found error response.
func (h *Handler) WriteNotFound(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeTenantNotFound, message, requestID)
}
