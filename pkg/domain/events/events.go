// Package events defines the typed events emitted to UI observers over the
// event bus. Event type strings are part of the public contract.
package events

import (
	"time"

	"github.com/palaceofquests/pinet/pkg/domain/session"
)

// Event is implemented by everything published on the bus.
type Event interface {
	EventType() string
}

// SDKInitialized is emitted once SDK setup succeeds.
type SDKInitialized struct {
	Sandbox bool
	At      time.Time
}

// SDKError is emitted on SDK initialization failures; observers typically
// surface it as a UI banner.
type SDKError struct {
	Kind  string
	Error string
	At    time.Time
}

// UserAuthenticated is emitted when authentication resolves with a session.
type UserAuthenticated struct {
	Session *session.Session
}

// AuthenticationError is emitted when authentication fails or is rejected.
type AuthenticationError struct {
	Error string
	At    time.Time
}

// UserSignedOut is emitted after the session and registry are cleared.
type UserSignedOut struct{}

// PaymentServerApproval is emitted when a payment is ready for server approval.
type PaymentServerApproval struct {
	PaymentID string
	Amount    float64
	Memo      string
}

// PaymentServerCompletion is emitted when a payment is ready for server
// completion, carrying the blockchain transaction identifier.
type PaymentServerCompletion struct {
	PaymentID string
	TxID      string
	Amount    float64
	Memo      string
}

// PaymentCancelled is emitted when the user cancels a payment in the Pi app.
type PaymentCancelled struct {
	PaymentID string
	Reason    string
}

// PaymentError is emitted when the SDK reports a payment failure.
type PaymentError struct {
	PaymentID string
	Error     string
}

// PaymentTimeout is emitted when the watchdog gives up on a payment. It is
// deliberately distinct from PaymentCancelled: the coordinator, not the
// user, terminated the payment.
type PaymentTimeout struct {
	PaymentID string
	Waited    time.Duration
}

// PaymentVerified is emitted when the backend confirms settlement.
type PaymentVerified struct {
	PaymentID string
}

// PaymentVerificationFailed is emitted when the backend could not confirm
// settlement.
type PaymentVerificationFailed struct {
	PaymentID string
	Reason    string
}

func (SDKInitialized) EventType() string            { return "sdk_initialized" }
func (SDKError) EventType() string                  { return "sdk_error" }
func (UserAuthenticated) EventType() string         { return "user_authenticated" }
func (AuthenticationError) EventType() string       { return "authentication_error" }
func (UserSignedOut) EventType() string             { return "user_signed_out" }
func (PaymentServerApproval) EventType() string     { return "payment_server_approval" }
func (PaymentServerCompletion) EventType() string   { return "payment_server_completion" }
func (PaymentCancelled) EventType() string          { return "payment_cancelled" }
func (PaymentError) EventType() string              { return "payment_error" }
func (PaymentTimeout) EventType() string            { return "payment_timeout" }
func (PaymentVerified) EventType() string           { return "payment_verified" }
func (PaymentVerificationFailed) EventType() string { return "payment_verification_failed" }
