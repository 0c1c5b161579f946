// Command cli runs the payment lifecycle against the mock Pi SDK, printing
// each emitted event. Useful for eyeballing the flow without a Pi browser.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/palaceofquests/pinet/infra/sdkmock"
	"github.com/palaceofquests/pinet/pkg/app"
	"github.com/palaceofquests/pinet/pkg/config"
	"github.com/palaceofquests/pinet/pkg/domain/events"
	"github.com/palaceofquests/pinet/pkg/eventbus"
	paymentsvc "github.com/palaceofquests/pinet/pkg/service/payment"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cli <command> [arguments]")
		fmt.Println("Commands: pay <amount> <memo>, cancel <amount> <memo>, pending")
		return
	}
	cmd := os.Args[1]

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if config.GetEnvAsBool("PINET_DEBUG", false) {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	cfg, err := config.Load(logger)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		return
	}

	mock := sdkmock.New()
	a := app.New(mock, cfg, logger)
	watchEvents(a.Bus)

	ctx := context.Background()
	if err := a.Sessions.Initialize(ctx); err != nil {
		fmt.Println("Failed to initialize SDK:", err)
		return
	}
	sess, err := a.Sessions.Authenticate(ctx, nil)
	if err != nil {
		fmt.Println("Authentication failed:", err)
		return
	}
	color.Green("Authenticated as %s (expires %s)", sess.Username, sess.ExpiresAt.Format(time.RFC3339))

	switch cmd {
	case "pay", "cancel":
		if len(os.Args) < 4 {
			fmt.Printf("Usage: %s <amount> <memo>\n", cmd)
			return
		}
		var amount float64
		if _, err := fmt.Sscanf(os.Args[2], "%f", &amount); err != nil {
			fmt.Println("Invalid amount:", err)
			return
		}
		runPayment(ctx, a, mock, amount, os.Args[3], cmd == "cancel")
	case "pending":
		for _, p := range a.Payments.PendingPayments() {
			fmt.Printf("%s  %s  %.2f  %s\n", p.PaymentID, p.Status, p.Amount, p.Memo)
		}
		if a.Registry.Len() == 0 {
			fmt.Println("No pending payments")
		}
	default:
		fmt.Println("Unknown command:", cmd)
	}
}

func runPayment(ctx context.Context, a *app.App, mock *sdkmock.Client, amount float64, memo string, cancel bool) {
	receipt, err := a.Payments.CreatePayment(ctx, paymentsvc.Request{Amount: amount, Memo: memo})
	if err != nil {
		color.Red("Payment rejected: %v", err)
		return
	}
	color.Cyan("Payment %s initiated (correlation %s)", receipt.PaymentID, receipt.CorrelationID)

	if cancel {
		_ = mock.Approve(receipt.PaymentID)
		_ = mock.Cancel(receipt.PaymentID)
	} else {
		_ = mock.Approve(receipt.PaymentID)
		_ = mock.Complete(receipt.PaymentID, "tx_demo")
		res := a.Payments.VerifyPayment(ctx, receipt.PaymentID)
		if !res.Verified {
			color.Yellow("Backend verification unavailable: %s", res.Reason)
			return
		}
	}

	select {
	case outcome := <-receipt.Done():
		if outcome.Err != nil {
			color.Red("Payment %s ended %s: %v", outcome.PaymentID, outcome.Status, outcome.Err)
		} else {
			color.Green("Payment %s ended %s", outcome.PaymentID, outcome.Status)
		}
	case <-time.After(2 * time.Second):
		color.Yellow("Payment %s still pending (status via 'pending')", receipt.PaymentID)
	}
}

func watchEvents(bus *eventbus.MemoryBus) {
	for _, eventType := range []string{
		"sdk_initialized", "sdk_error",
		"user_authenticated", "authentication_error", "user_signed_out",
		"payment_server_approval", "payment_server_completion",
		"payment_cancelled", "payment_error", "payment_timeout",
		"payment_verified", "payment_verification_failed",
	} {
		bus.Register(eventType, func(_ context.Context, e events.Event) {
			color.Magenta("event: %s %+v", e.EventType(), e)
		})
	}
}
