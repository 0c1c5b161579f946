// Package verification confirms payment settlement with the Palace of
// Quests backend.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// Result reports the settlement status of a payment. Verification never
// fails with an error; every failure mode is represented here so callers can
// treat verification uniformly.
type Result struct {
	PaymentID string
	Verified  bool
	Reason    string
}

type verifyRequest struct {
	PaymentID string `json:"paymentId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// Client performs the remote verification round-trip.
type Client struct {
	http       *resty.Client
	logger     *slog.Logger
	maxRetries int
	// onUnauthorized fires on a 401-class response so the caller can force
	// a sign-out.
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries enables automatic retry of failed verification calls.
// Zero (the default) disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithOnUnauthorized registers the hook invoked on 401-class responses.
func WithOnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a verification client against the given backend base URL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
		logger: logger.With("client", "verification"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify confirms whether the given payment has settled. Network failures
// and non-2xx responses produce a Result with Verified=false and a Reason;
// this call never returns an error.
func (c *Client) Verify(ctx context.Context, paymentID, userID, accessToken string) Result {
	log := c.logger.With("payment_id", paymentID, "user_id", userID)

	attempt := func() (Result, error) {
		var body verifyResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+accessToken).
			SetBody(verifyRequest{
				PaymentID: paymentID,
				UserID:    userID,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}).
			SetResult(&body).
			SetError(&body).
			Post("/payments/verify")
		if err != nil {
			return Result{PaymentID: paymentID, Reason: fmt.Sprintf("verification request failed: %s", err.Error())}, err
		}
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			// Not retryable: the session is gone.
			return Result{PaymentID: paymentID, Reason: fmt.Sprintf("verification unauthorized: status %d", resp.StatusCode())}, nil
		}
		if resp.IsError() {
			reason := body.Reason
			if reason == "" {
				reason = fmt.Sprintf("verification failed: status %d", resp.StatusCode())
			}
			return Result{PaymentID: paymentID, Reason: reason},
				fmt.Errorf("verify %s: status %d", paymentID, resp.StatusCode())
		}
		return Result{PaymentID: paymentID, Verified: body.Verified, Reason: body.Reason}, nil
	}

	var result Result
	op := func() error {
		var err error
		result, err = attempt()
		return err
	}

	var err error
	if c.maxRetries > 0 {
		err = backoff.Retry(op, backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx))
	} else {
		err = op()
	}
	if err != nil {
		log.Error("payment verification failed", "error", err, "reason", result.Reason)
		return result
	}
	if result.Verified {
		log.Info("payment verified")
	} else {
		log.Warn("payment not verified", "reason", result.Reason)
	}
	return result
}
