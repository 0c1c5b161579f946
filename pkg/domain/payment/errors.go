package payment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPaymentCancelled is the sentinel for user-initiated cancellation.
	ErrPaymentCancelled = errors.New("payment cancelled by user")
	// ErrPaymentTimeout is the sentinel for watchdog-initiated termination.
	ErrPaymentTimeout = errors.New("payment timed out waiting for confirmation")
)

// ValidationError reports a bad payment request. It is produced before any
// SDK call is made and never logged as a system failure.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payment validation failed: %s", strings.Join(e.Reasons, ", "))
}

// CancelledError reports an SDK onCancel callback for a specific payment.
type CancelledError struct {
	PaymentID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("payment %s cancelled by user", e.PaymentID)
}

func (e *CancelledError) Unwrap() error { return ErrPaymentCancelled }

// TimeoutError reports a watchdog expiry for a specific payment.
type TimeoutError struct {
	PaymentID string
	Waited    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("payment %s timed out after %s", e.PaymentID, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return ErrPaymentTimeout }

// SdkError wraps an error reported by the SDK's onError callback, preserving
// the underlying message.
type SdkError struct {
	PaymentID string
	Cause     error
}

func (e *SdkError) Error() string {
	if e.PaymentID == "" {
		return fmt.Sprintf("pi sdk payment error: %s", e.Cause.Error())
	}
	return fmt.Sprintf("pi sdk payment error for %s: %s", e.PaymentID, e.Cause.Error())
}

func (e *SdkError) Unwrap() error { return e.Cause }

// TransitionError reports an illegal status move, e.g. completion after
// cancellation.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal payment status transition %s -> %s", e.From, e.To)
}
