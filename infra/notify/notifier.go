// Package notify forwards SDK callback events to the backend. The calls are
// fire-and-forget: their responses never gate the coordinator's own state
// transitions.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier posts payment protocol notifications to the backend.
type Notifier struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates a notifier against the given backend base URL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
		logger: logger.With("client", "notify"),
	}
}

type notification struct {
	PaymentID string `json:"paymentId"`
	TxID      string `json:"txid,omitempty"`
}

// Approve notifies the backend that a payment is ready for server approval.
func (n *Notifier) Approve(ctx context.Context, accessToken, paymentID string) {
	n.post(ctx, "/approve", accessToken, notification{PaymentID: paymentID})
}

// Complete notifies the backend that a payment is ready for server
// completion, carrying the blockchain transaction ID.
func (n *Notifier) Complete(ctx context.Context, accessToken, paymentID, txID string) {
	n.post(ctx, "/complete", accessToken, notification{PaymentID: paymentID, TxID: txID})
}

// Cancelled notifies the backend that the user cancelled a payment.
func (n *Notifier) Cancelled(ctx context.Context, accessToken, paymentID string) {
	n.post(ctx, "/cancelled_payment", accessToken, notification{PaymentID: paymentID})
}

func (n *Notifier) post(ctx context.Context, path, accessToken string, body notification) {
	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetBody(body).
		Post(path)
	if err != nil {
		n.logger.Warn("backend notification failed",
			"path", path, "payment_id", body.PaymentID, "error", err)
		return
	}
	if resp.IsError() {
		n.logger.Warn("backend notification rejected",
			"path", path, "payment_id", body.PaymentID, "status", resp.StatusCode())
	}
}
