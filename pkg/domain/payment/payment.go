// Package payment defines the coordinator's local record of an in-flight
// payment and the status machine it moves through.
package payment

import (
	"time"
)

// Status represents the protocol stage of a pending payment.
type Status string

const (
	// StatusCreated indicates the SDK accepted creation of the payment.
	StatusCreated Status = "created"
	// StatusServerApproval indicates the payment is ready for server approval.
	StatusServerApproval Status = "server_approval"
	// StatusServerCompletion indicates the payment is ready for server completion.
	StatusServerCompletion Status = "server_completion"
	// StatusVerified indicates the backend confirmed settlement.
	StatusVerified Status = "verified"
	// StatusCancelled indicates the user cancelled the payment in the Pi app.
	StatusCancelled Status = "cancelled"
	// StatusError indicates the SDK reported a payment failure.
	StatusError Status = "error"
	// StatusTimedOut indicates the coordinator's watchdog gave up on the payment.
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusCancelled, StatusError, StatusTimedOut:
		return true
	}
	return false
}

// next maps each non-terminal status to its single allowed successor on the
// happy path. Terminal exits are handled separately in Transition.
var next = map[Status]Status{
	StatusCreated:          StatusServerApproval,
	StatusServerApproval:   StatusServerCompletion,
	StatusServerCompletion: StatusVerified,
}

// Transition validates a status move. The happy path is strictly monotonic
// with no skipped steps; cancelled, error and timed_out are reachable from
// any non-terminal status.
func Transition(from, to Status) error {
	if from.Terminal() {
		return &TransitionError{From: from, To: to}
	}
	if to == StatusCancelled || to == StatusError || to == StatusTimedOut {
		return nil
	}
	if next[from] != to {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Pending is the local record of an in-flight payment. Entries are mutated
// only by the payment coordinator.
type Pending struct {
	// PaymentID is the opaque identifier issued by the SDK.
	PaymentID string
	// CorrelationID is the client-side identifier generated before the SDK
	// supplied a payment ID, used for log correlation only.
	CorrelationID string
	Amount        float64
	Memo          string
	Metadata      map[string]string
	Status        Status
	CreatedAt     time.Time
	// TxID is the blockchain transaction identifier, assigned at the
	// server-completion step.
	TxID string
}

// Age returns how long the payment has been pending as of t.
func (p *Pending) Age(t time.Time) time.Duration {
	return t.Sub(p.CreatedAt)
}
