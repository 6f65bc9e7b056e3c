package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gadget-sense/gadget-sense/internal/analysis"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents a standardised error response
type ErrorResponse struct {
	Status    int            `json:"status"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// UnsupportedRetailerResponse is the 422 body for a recognised retailer the
// analysis service cannot handle. The browser offers the listed retailers
// as a recovery path.
type UnsupportedRetailerResponse struct {
	Error              string              `json:"error"`
	Retailer           string              `json:"retailer,omitempty"`
	Message            string              `json:"message"`
	SupportedRetailers []analysis.Retailer `json:"supportedRetailers"`
	Code               string              `json:"code"`
	RequestID          string              `json:"request_id,omitempty"`
}

// ErrorCode represents standard error codes
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotAllowed    ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeRateLimit           ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstreamRejected    ErrorCode = "UPSTREAM_REJECTED"
	ErrCodeUnsupportedRetailer ErrorCode = "UNSUPPORTED_RETAILER"

	// Server errors (5xx)
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeUpstream           ErrorCode = "UPSTREAM_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRequestCancelled   ErrorCode = "REQUEST_CANCELLED"
)

// WriteError writes a standardised error response
func WriteError(w http.ResponseWriter, r *http.Request, err error, status int, code ErrorCode) {
	writeError(w, r, ErrorResponse{Status: status, Message: err.Error(), Code: string(code)}, err)
}

// WriteErrorMessage writes a standardised error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, message string, status int, code ErrorCode) {
	writeError(w, r, ErrorResponse{Status: status, Message: message, Code: string(code)}, nil)
}

func writeError(w http.ResponseWriter, r *http.Request, errResp ErrorResponse, err error) {
	errResp.RequestID = GetRequestID(r)

	// Client mistakes are expected traffic; only 5xx is an error
	level := zerolog.WarnLevel
	if errResp.Status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	requestLogger(r).WithLevel(level).
		Err(err).
		Int("status", errResp.Status).
		Str("code", errResp.Code).
		Str("message", errResp.Message).
		Msg("API error response")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errResp.Status)
	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// Common error helpers for frequent use cases

// BadRequest responds with a 400 Bad Request error
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusBadRequest, ErrCodeBadRequest)
}

// ValidationError responds with a 400 naming the offending field and the
// check that rejected it
func ValidationError(w http.ResponseWriter, r *http.Request, field, reason, message string) {
	writeError(w, r, ErrorResponse{
		Status:  http.StatusBadRequest,
		Message: message,
		Code:    string(ErrCodeValidation),
		Details: map[string]any{"field": field, "reason": reason},
	}, nil)
}

// NotFound responds with a 404 Not Found error
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusNotFound, ErrCodeNotFound)
}

// MethodNotAllowed responds with a 405 Method Not Allowed error
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteErrorMessage(w, r, "Method not allowed", http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed)
}

// InternalError responds with a 500 Internal Server Error
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, err, http.StatusInternalServerError, ErrCodeInternal)
}

// ServiceUnavailable responds with a 503 Service Unavailable error
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, message, http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
}

// TooManyRequests responds with 429 and Retry-After header
func TooManyRequests(w http.ResponseWriter, r *http.Request, message string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteErrorMessage(w, r, message, http.StatusTooManyRequests, ErrCodeRateLimit)
}

// WriteAnalysisError maps an analysis failure onto a response. Every Kind
// has its own status and code so the browser can pick a recovery path.
func WriteAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	var aerr *analysis.Error
	if !errors.As(err, &aerr) {
		sentry.CaptureException(err)
		InternalError(w, r, err)
		return
	}

	resp := ErrorResponse{Message: aerr.Message, Details: aerr.Details}

	switch aerr.Kind {
	case analysis.KindUnsupportedRetailer:
		writeUnsupportedRetailer(w, r, aerr)
		return
	case analysis.KindClient:
		resp.Status = aerr.Status
		if resp.Status < 400 || resp.Status > 499 {
			resp.Status = http.StatusBadRequest
		}
		resp.Code = string(ErrCodeUpstreamRejected)
	case analysis.KindServer:
		resp.Status = http.StatusBadGateway
		resp.Code = string(ErrCodeUpstream)
		captureUpstreamFailure(r, aerr)
	case analysis.KindNetwork:
		resp.Status = http.StatusServiceUnavailable
		resp.Code = string(ErrCodeServiceUnavailable)
		captureUpstreamFailure(r, aerr)
	case analysis.KindCancelled:
		resp.Status = http.StatusGatewayTimeout
		resp.Code = string(ErrCodeRequestCancelled)
	default:
		sentry.CaptureException(err)
		InternalError(w, r, err)
		return
	}

	writeError(w, r, resp, err)
}

func writeUnsupportedRetailer(w http.ResponseWriter, r *http.Request, aerr *analysis.Error) {
	retailers := aerr.SupportedRetailers
	if retailers == nil {
		retailers = []analysis.Retailer{}
	}

	requestLogger(r).Info().
		Str("retailer", aerr.Retailer).
		Int("alternatives", len(retailers)).
		Msg("Unsupported retailer")

	WriteJSON(w, r, UnsupportedRetailerResponse{
		Error:              "Unsupported retailer",
		Retailer:           aerr.Retailer,
		Message:            aerr.Message,
		SupportedRetailers: retailers,
		Code:               string(ErrCodeUnsupportedRetailer),
		RequestID:          GetRequestID(r),
	}, http.StatusUnprocessableEntity)
}

func captureUpstreamFailure(r *http.Request, aerr *analysis.Error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("analysis.kind", aerr.Kind.String())
		scope.SetTag("request_id", GetRequestID(r))
		if aerr.Status > 0 {
			scope.SetTag("upstream_status", strconv.Itoa(aerr.Status))
		}
		sentry.CaptureException(aerr)
	})
}
