package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"

	"github.com/jafarshop/tablepos/internal/domain"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict is returned when there's a conflict (e.g., idempotency)
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// ErrValidation is returned when validation fails: malformed encoder input,
// an unknown or unusable promotion, or a malformed order request.
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrInvalidStateTransition is returned when an invalid state transition is attempted
type ErrInvalidStateTransition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// Order creation stages at which persistence can fail.
const (
	StageHeader = "header"
	StageLines  = "lines"
)

// ErrOrderCreation wraps a persistence failure during order submission.
// Compensated reports whether the header written before a lines failure was removed again.
type ErrOrderCreation struct {
	Stage       string
	Err         error
	Compensated bool
}

func (e *ErrOrderCreation) Error() string {
	return fmt.Sprintf("order creation failed at %s stage: %v", e.Stage, e.Err)
}

func (e *ErrOrderCreation) Unwrap() error {
	return e.Err
}

// ErrAllProvidersFailed is returned by the verification chain once every provider was tried.
type ErrAllProvidersFailed struct {
	Attempts int
	LastErr  error
}

func (e *ErrAllProvidersFailed) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("all verification providers failed (%d attempted)", e.Attempts)
	}
	return fmt.Sprintf("all verification providers failed (%d attempted): last error: %v", e.Attempts, e.LastErr)
}

func (e *ErrAllProvidersFailed) Unwrap() error {
	return e.LastErr
}

// ErrNetworkUnavailable marks a failure caused by missing connectivity rather than bad input.
type ErrNetworkUnavailable struct {
	Err error
}

func (e *ErrNetworkUnavailable) Error() string {
	if e.Err == nil {
		return "network unavailable"
	}
	return fmt.Sprintf("network unavailable: %v", e.Err)
}

func (e *ErrNetworkUnavailable) Unwrap() error {
	return e.Err
}

// IsNetworkUnavailable reports whether err (or anything it wraps) means the
// persistence side could not be reached.
func IsNetworkUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var unavailable *ErrNetworkUnavailable
	if stderrors.As(err, &unavailable) {
		return true
	}
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
