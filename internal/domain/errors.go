package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientData not enough data to analyze an asset; the asset is skipped for the cycle.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrOracleParse oracle verdict is malformed.
	ErrOracleParse = errors.New("oracle verdict parse error")
	// ErrNotFound asset is unknown to the provider.
	ErrNotFound = errors.New("not found")

	ErrSlippageExceeded = errors.New("slippage exceeded")
	ErrVenueUnavailable = errors.New("venue unavailable")
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrOrderRejected venue refused the order; retrying the same order cannot succeed.
	ErrOrderRejected = errors.New("order rejected")
)

// RiskViolation proposed position rejected by the risk gate.
type RiskViolation struct {
	Reason string
}

func (e *RiskViolation) Error() string {
	return "risk violation: " + e.Reason
}

// NewRiskViolation formats a risk violation.
func NewRiskViolation(format string, args ...any) *RiskViolation {
	return &RiskViolation{Reason: fmt.Sprintf(format, args...)}
}

// ExecutionError failure of an order after the engine gave up on it.
// errors.Is matches both Kind and the last underlying cause.
type ExecutionError struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v after %d attempt(s)", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("%v after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
