package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed analysis request. The set is closed; callers
// switch over it to choose a recovery path.
type Kind int

const (
	// KindClient is an HTTP 4xx or a locally rejected request. Not retried.
	KindClient Kind = iota + 1
	// KindServer is an HTTP 5xx or a response body that is not a JSON object.
	KindServer
	// KindNetwork means no response was received.
	KindNetwork
	// KindCancelled is a caller- or timeout-initiated abort. Not retried.
	KindCancelled
	// KindUnsupportedRetailer is the service's 422 for a recognised but
	// unscrapeable retailer.
	KindUnsupportedRetailer
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindServer:
		return "server_error"
	case KindNetwork:
		return "network_error"
	case KindCancelled:
		return "cancelled"
	case KindUnsupportedRetailer:
		return "unsupported_retailer"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k != KindClient && k != KindCancelled
}

// Retailer is an entry of the service's supported-retailer list.
type Retailer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Error is the failure returned by every Client operation.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was received
	Message string
	Details map[string]any

	// Set for KindUnsupportedRetailer.
	Retailer           string
	SupportedRetailers []Retailer

	Err error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analysis: %s (%s, status %d)", e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("analysis: %s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return 0
}

// IsRetryable reports whether err should be retried. Unclassified errors are
// treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind.Retryable()
	}
	return true
}

func invalidInput(field, message string) *Error {
	return &Error{
		Kind:    KindClient,
		Status:  http.StatusBadRequest,
		Message: message,
		Details: map[string]any{"field": field},
	}
}

func networkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Network error - please check your connection",
		Details: map[string]any{"network": true},
		Err:     err,
	}
}

func invalidResponse(err error) *Error {
	return &Error{
		Kind:    KindServer,
		Status:  http.StatusInternalServerError,
		Message: "Invalid response format",
		Err:     err,
	}
}

// cancelledError describes why ctx ended; the cause decides the message.
func cancelledError(ctx context.Context) *Error {
	cause := context.Cause(ctx)
	message := "Request cancelled"
	if errors.Is(cause, ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		message = "Request timed out"
	}
	return &Error{
		Kind:    KindCancelled,
		Message: message,
		Details: map[string]any{"cancelled": true},
		Err:     cause,
	}
}
