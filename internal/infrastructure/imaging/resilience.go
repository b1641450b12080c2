package imaging

import (
	"errors"

	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
)

func classifyFetchError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	// Size and body read errors are not retried.
	return resilience.ErrorClassification{}
}
