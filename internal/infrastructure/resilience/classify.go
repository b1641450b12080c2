package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

var (
	retryable = ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	ignored   = ErrorClassification{Retryable: false, RecordFailure: false}
)

// IsRetryableHTTPStatus reports statuses worth another attempt.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus classifies a completed HTTP exchange. Client errors other
// than 408 and 429 do not count against the breaker.
func ClassifyHTTPStatus(statusCode int) ErrorClassification {
	if IsRetryableHTTPStatus(statusCode) {
		return retryable
	}
	return ignored
}

// ClassifyTransport handles the cases every adapter shares: cancellation,
// open breakers and network failures. ok is false when the error needs
// adapter-specific classification.
func ClassifyTransport(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ignored, true
	case IsCircuitOpen(err):
		return retryable, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryable, true
	}
	return ErrorClassification{}, false
}

// Permanent is the classification for unrecognized failures.
func Permanent() ErrorClassification {
	return permanent
}
