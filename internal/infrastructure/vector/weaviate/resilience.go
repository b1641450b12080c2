package weaviate

import (
	"errors"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
)

func classifyWeaviateError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}

	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		if clientErr.IsUnexpectedStatusCode {
			return resilience.ClassifyHTTPStatus(clientErr.StatusCode)
		}
		if clientErr.DerivedFromError != nil {
			if class, ok := resilience.ClassifyTransport(clientErr.DerivedFromError); ok {
				return class
			}
		}
		return resilience.Permanent()
	}

	// GraphQL errors are neither retried nor counted by the breaker.
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return resilience.ErrorClassification{}
	}
	return resilience.Permanent()
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	class := classifyWeaviateError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
