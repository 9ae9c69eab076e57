package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrParseFailure      = errors.New("parse failure")
	ErrUnsupportedType   = errors.New("unsupported content type")
	ErrIndexFailure      = errors.New("index failure")
	ErrGenerationFailure = errors.New("generation failure")
	ErrLocatorOutOfRange = errors.New("locator out of range")
	ErrCancelled         = errors.New("cancelled")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
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

// WrapModelError classifies a failed model call: context expiry becomes
// ErrCancelled, everything else the given kind.
func WrapModelError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrCancelled, operation, err)
	}
	return WrapError(kind, operation, err)
}
