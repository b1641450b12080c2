package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")

	// Pipeline failure taxonomy. Stages degrade on these instead of aborting a turn.
	ErrUpstreamCall = errors.New("upstream call failure")
	ErrBackendQuery = errors.New("backend query failure")
	ErrParse        = errors.New("parse failure")
	ErrFetch        = errors.New("fetch failure")
	ErrDecode       = errors.New("decode failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
