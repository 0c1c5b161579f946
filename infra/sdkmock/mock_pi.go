// Package sdkmock simulates the Pi Network SDK for tests and local
// development.
//
// Usage:
//   - Script authentication results and init failures up front.
//   - CreatePayment captures the coordinator's callbacks; tests (or the demo
//     CLI) then drive the protocol with Approve/Complete/Cancel/Fail.
//   - This is NOT for production use. The real SDK delivers callbacks from
//     the Pi browser runtime after human confirmation on the phone.
package sdkmock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/palaceofquests/pinet/pkg/sdk"
)

// ErrUnknownPayment is returned by the driver helpers when no payment with
// the given ID was created.
var ErrUnknownPayment = errors.New("sdkmock: unknown payment id")

// Client is a scripted in-memory Pi SDK.
type Client struct {
	mu sync.Mutex

	initErrs  []error // consumed one per Init call
	initCalls int

	authStatus *sdk.AuthStatus
	authResult *sdk.AuthResult
	authErr    error
	incomplete []sdk.IncompletePayment

	createErr   error
	createHook  func(paymentID string, cb sdk.PaymentCallbacks)
	createCalls int
	seq         int
	callbacks   map[string]sdk.PaymentCallbacks
}

// New creates a mock SDK that authenticates successfully as the given user.
func New() *Client {
	return &Client{
		authResult: &sdk.AuthResult{
			User:        &sdk.User{UID: "uid_mock", Username: "pioneer"},
			AccessToken: "token_mock",
		},
		callbacks: make(map[string]sdk.PaymentCallbacks),
	}
}

// ScriptInitFailures makes the next len(errs) Init calls fail in order.
func (c *Client) ScriptInitFailures(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErrs = append(c.initErrs, errs...)
}

// ScriptAuth overrides the result of the next Authenticate calls.
func (c *Client) ScriptAuth(result *sdk.AuthResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authResult, c.authErr = result, err
}

// ScriptAuthStatus sets what AuthStatus reports.
func (c *Client) ScriptAuthStatus(st *sdk.AuthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authStatus = st
}

// ScriptIncomplete queues incomplete payments to surface on the next
// Authenticate call.
func (c *Client) ScriptIncomplete(payments ...sdk.IncompletePayment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incomplete = append(c.incomplete, payments...)
}

// ScriptCreateError makes CreatePayment fail at the transport level.
func (c *Client) ScriptCreateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

// ScriptCreateHook runs fn inside the next CreatePayment calls, after the
// payment ID is assigned but before CreatePayment returns. The real SDK
// delivers callbacks whenever the phone responds, which can be before the
// create call comes back; the hook reproduces that timing.
func (c *Client) ScriptCreateHook(fn func(paymentID string, cb sdk.PaymentCallbacks)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createHook = fn
}

// Init consumes one scripted failure if present, otherwise succeeds.
func (c *Client) Init(ctx context.Context, cfg sdk.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initCalls++
	if len(c.initErrs) > 0 {
		err := c.initErrs[0]
		c.initErrs = c.initErrs[1:]
		return err
	}
	return nil
}

// InitCalls returns how many times Init was invoked.
func (c *Client) InitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initCalls
}

// AuthStatus reports the scripted authentication state.
func (c *Client) AuthStatus(ctx context.Context) (*sdk.AuthStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authStatus == nil {
		return &sdk.AuthStatus{}, nil
	}
	return c.authStatus, nil
}

// Authenticate surfaces any queued incomplete payments, then returns the
// scripted result.
func (c *Client) Authenticate(ctx context.Context, opts sdk.AuthOptions) (*sdk.AuthResult, error) {
	c.mu.Lock()
	pending := c.incomplete
	c.incomplete = nil
	result, err := c.authResult, c.authErr
	c.mu.Unlock()

	if opts.OnIncompletePaymentFound != nil {
		for _, p := range pending {
			opts.OnIncompletePaymentFound(p)
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreatePayment accepts the payment, assigns a payment ID and captures the
// callbacks for the driver helpers.
func (c *Client) CreatePayment(ctx context.Context, req sdk.PaymentRequest, cb sdk.PaymentCallbacks) (*sdk.CreateResult, error) {
	c.mu.Lock()
	c.createCalls++
	if c.createErr != nil {
		c.mu.Unlock()
		return nil, c.createErr
	}
	c.seq++
	paymentID := fmt.Sprintf("pay_%d", c.seq)
	c.callbacks[paymentID] = cb
	hook := c.createHook
	c.mu.Unlock()

	if hook != nil {
		hook(paymentID, cb)
	}
	return &sdk.CreateResult{PaymentID: paymentID, Status: "initiated"}, nil
}

// CreateCalls returns how many times CreatePayment was invoked, including
// rejected calls.
func (c *Client) CreateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createCalls
}

func (c *Client) lookup(paymentID string) (sdk.PaymentCallbacks, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.callbacks[paymentID]
	if !ok {
		return sdk.PaymentCallbacks{}, fmt.Errorf("%w: %s", ErrUnknownPayment, paymentID)
	}
	return cb, nil
}

// Approve delivers onReadyForServerApproval for the payment.
func (c *Client) Approve(paymentID string) error {
	cb, err := c.lookup(paymentID)
	if err != nil {
		return err
	}
	cb.OnReadyForServerApproval(paymentID)
	return nil
}

// Complete delivers onReadyForServerCompletion with the given transaction ID.
func (c *Client) Complete(paymentID, txID string) error {
	cb, err := c.lookup(paymentID)
	if err != nil {
		return err
	}
	cb.OnReadyForServerCompletion(paymentID, txID)
	return nil
}

// Cancel delivers onCancel for the payment.
func (c *Client) Cancel(paymentID string) error {
	cb, err := c.lookup(paymentID)
	if err != nil {
		return err
	}
	cb.OnCancel(paymentID)
	return nil
}

// Fail delivers onError for the payment.
func (c *Client) Fail(paymentID string, failure error) error {
	cb, err := c.lookup(paymentID)
	if err != nil {
		return err
	}
	cb.OnError(failure, &sdk.IncompletePayment{Identifier: paymentID})
	return nil
}

// FailWithoutPayment delivers onError with a nil payment reference, as the
// SDK does when a payment fails before its payment object materializes.
func (c *Client) FailWithoutPayment(paymentID string, failure error) error {
	cb, err := c.lookup(paymentID)
	if err != nil {
		return err
	}
	cb.OnError(failure, nil)
	return nil
}

// Ensure Client implements the SDK contract.
var _ sdk.Client = (*Client)(nil)
