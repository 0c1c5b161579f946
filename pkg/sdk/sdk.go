// Package sdk defines the boundary contract with the external Pi Network
// SDK. The SDK itself is a third-party collaborator; this package only fixes
// the call and callback shapes the coordinator depends on.
package sdk

import (
	"context"
	"time"
)

// Config holds one-time SDK setup parameters.
type Config struct {
	Version string
	Sandbox bool
	Timeout time.Duration
}

// AuthStatus is the SDK's view of the current authentication state.
type AuthStatus struct {
	Authenticated bool
	User          *User
	AccessToken   string
}

// User identifies the authenticated Pi user.
type User struct {
	UID      string
	Username string
}

// AuthResult is delivered when an authentication attempt succeeds.
type AuthResult struct {
	User        *User
	AccessToken string
}

// IncompletePayment describes a payment left unresolved from a previous
// session, surfaced by the SDK during a fresh authentication attempt.
type IncompletePayment struct {
	Identifier string
	Amount     float64
	Memo       string
	TxID       string
}

// AuthOptions parameterizes an authentication attempt.
type AuthOptions struct {
	Scopes []string
	// OnIncompletePaymentFound is invoked for each unresolved payment the
	// SDK surfaces mid-authentication. Authentication completion does not
	// wait on it.
	OnIncompletePaymentFound func(p IncompletePayment)
}

// PaymentRequest is the payment configuration handed to the SDK.
type PaymentRequest struct {
	Amount   float64
	Memo     string
	Metadata map[string]string
}

// PaymentCallbacks is the SDK's four-callback payment protocol. For a single
// payment the SDK delivers approval before completion before any terminal
// callback, but OnCancel or OnError may arrive instead of the expected next
// step at any point.
type PaymentCallbacks struct {
	OnReadyForServerApproval   func(paymentID string)
	OnReadyForServerCompletion func(paymentID, txID string)
	OnCancel                   func(paymentID string)
	OnError                    func(err error, payment *IncompletePayment)
}

// CreateResult is returned once the SDK accepts creation of a payment.
// Later protocol steps arrive through PaymentCallbacks.
type CreateResult struct {
	PaymentID string
	Status    string // "initiated"
}

// Client is the Pi Network SDK surface the coordinator consumes.
type Client interface {
	Init(ctx context.Context, cfg Config) error
	AuthStatus(ctx context.Context) (*AuthStatus, error)
	Authenticate(ctx context.Context, opts AuthOptions) (*AuthResult, error)
	CreatePayment(ctx context.Context, req PaymentRequest, cb PaymentCallbacks) (*CreateResult, error)
}
