package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ============================================================
// Error envelope
// ============================================================
//
//	{"error": {"message": "...", "code": "INVALID_REQUEST",
//	           "timestamp": "2024-05-01T10:00:00Z", "requestId": "req_..."}}

// Error codes returned in the envelope.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeRequestTimeout       = "REQUEST_TIMEOUT"
	CodeRateLimited          = "RATE_LIMITED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeBadGateway           = "BAD_GATEWAY"
	CodeInternal             = "INTERNAL_SERVER_ERROR"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// WriteJSON serializes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes the error envelope, stamped with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	WriteJSON(w, status, errorResponse{Error: errorBody{
		Message:   msg,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

// DecodeJSON requires an application/json body and decodes it into v.
func DecodeJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &domain.ErrUnsupportedMediaType{ContentType: r.Header.Get("Content-Type")}
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "malformed JSON body"}
	}
	return nil
}

// HandleServiceError maps domain errors to HTTP responses. Unknown errors
// never leak their text to the caller.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	logger = observability.RequestLogger(r.Context(), logger).With(zap.String("path", r.URL.Path))

	var validation *domain.ErrValidation
	var mediaType *domain.ErrUnsupportedMediaType
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var notFound *domain.ErrNotFound
	var conflict *domain.ErrConflict
	var duplicate *domain.ErrDuplicate
	var timeout *domain.ErrTimeout
	var rateLimited *domain.ErrRateLimited
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		WriteError(w, r, http.StatusBadRequest, CodeInvalidRequest, validation.Message)
	case errors.As(err, &mediaType):
		WriteError(w, r, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		WriteError(w, r, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		WriteError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.As(err, &conflict), errors.As(err, &duplicate):
		logger.Debug("conflict", zap.String("error", err.Error()))
		WriteError(w, r, http.StatusConflict, CodeConflict, err.Error())
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		WriteError(w, r, http.StatusRequestTimeout, CodeRequestTimeout, "the request took too long, please try again")
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", retryAfterSeconds(rateLimited.RetryAfter))
		WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "service temporarily unavailable")
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(external.Err))
		WriteError(w, r, http.StatusBadGateway, CodeBadGateway, "upstream service unavailable")
	default:
		logger.Error("unhandled error", zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
