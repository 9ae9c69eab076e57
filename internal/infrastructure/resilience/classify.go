package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// Transient reports whether a backend failure may succeed on a later attempt.
type Transient func(error) bool

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// shouldRetry decides whether another attempt is worthwhile. A deadline that
// fired while the caller is still waiting belongs to the attempt timeout.
func shouldRetry(ctx context.Context, err error, transient Transient) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled), IsCircuitOpen(err):
		return false
	default:
		return transient != nil && transient(err)
	}
}

// countsAgainstBreaker keeps caller cancellations and permanent errors (bad
// input, unknown model) from opening the circuit.
func countsAgainstBreaker(err error, transient Transient) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return transient == nil || transient(err)
	}
}

// Temporary marks err as domain.ErrTemporary when retrying later could help:
// the failure is transient or the breaker refused the call.
func Temporary(operation string, err error, transient Transient) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsCircuitOpen(err) || (transient != nil && transient(err)) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
