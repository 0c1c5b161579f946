// Package payment drives a Pi payment through its multi-step callback
// protocol: creation, server approval, server completion and verification,
// with terminal exits for cancellation, SDK errors and timeouts.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/palaceofquests/pinet/infra/verification"
	"github.com/palaceofquests/pinet/pkg/domain/events"
	domain "github.com/palaceofquests/pinet/pkg/domain/payment"
	"github.com/palaceofquests/pinet/pkg/domain/session"
	"github.com/palaceofquests/pinet/pkg/eventbus"
	"github.com/palaceofquests/pinet/pkg/registry"
	"github.com/palaceofquests/pinet/pkg/sdk"
)

// SessionSource supplies the current session. Expiry is checked inside
// Current, so a returned session is always valid at that instant.
type SessionSource interface {
	Current() (*session.Session, error)
}

// Verifier confirms settlement with the backend. It never returns an error;
// all failure modes are carried in the result.
type Verifier interface {
	Verify(ctx context.Context, paymentID, userID, accessToken string) verification.Result
}

// Notifier forwards callback events to the backend, fire-and-forget.
type Notifier interface {
	Approve(ctx context.Context, accessToken, paymentID string)
	Complete(ctx context.Context, accessToken, paymentID, txID string)
	Cancelled(ctx context.Context, accessToken, paymentID string)
}

// Config bounds payment validation and the watchdog.
type Config struct {
	MaxAmount float64
	MemoLimit int
	Timeout   time.Duration
}

// Request describes a payment to create.
type Request struct {
	Amount   float64           `validate:"required"`
	Memo     string            `validate:"required"`
	Metadata map[string]string `validate:"-"`
}

// Outcome is the terminal result of a payment, delivered exactly once on the
// receipt's Done channel. Err is nil when the payment verified successfully.
type Outcome struct {
	PaymentID string
	Status    domain.Status
	Err       error
}

// Receipt is returned as soon as the SDK accepts creation. Settlement takes
// arbitrarily long (human confirmation on the phone), so the terminal
// outcome arrives later through Done and the event bus.
type Receipt struct {
	PaymentID     string
	CorrelationID string
	Status        string // "initiated"
	done          chan Outcome
}

// Done delivers exactly one terminal Outcome, then closes.
func (r *Receipt) Done() <-chan Outcome { return r.done }

// inflight is the live state of one payment. The SDK callbacks close over
// it, so a terminal delivery reaches the right payment even when it races
// registration or carries no payment reference at all.
type inflight struct {
	receipt *Receipt
	once    sync.Once

	mu       sync.Mutex
	id       string // empty until the SDK assigns one
	entry    domain.Pending
	bound    bool
	terminal bool
	watchdog *time.Timer
}

func (fl *inflight) paymentID() string {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.id
}

// Coordinator owns the payment lifecycle. It is the only writer of the
// pending-payment registry.
type Coordinator struct {
	sdk      sdk.Client
	sessions SessionSource
	verifier Verifier
	notifier Notifier
	pending  *registry.Pending
	bus      eventbus.Bus
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate

	mu       sync.Mutex
	inflight map[string]*inflight

	now func() time.Time
}

// NewCoordinator wires a payment coordinator. The notifier may be nil when
// backend notifications are not wanted (tests, offline demo).
func NewCoordinator(
	client sdk.Client,
	sessions SessionSource,
	verifier Verifier,
	notifier Notifier,
	pending *registry.Pending,
	bus eventbus.Bus,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Coordinator{
		sdk:      client,
		sessions: sessions,
		verifier: verifier,
		notifier: notifier,
		pending:  pending,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With("service", "payment"),
		validate: validator.New(),
		inflight: make(map[string]*inflight),
		now:      time.Now,
	}
}

// CreatePayment validates the request, hands it to the SDK and returns a
// receipt once the SDK accepts creation. Validation errors never reach the
// SDK; SDK transport errors are returned immediately with no retry, since
// creation is not safely retryable without idempotency guarantees.
//
// Callbacks may arrive on SDK-owned goroutines at any point after the SDK
// call begins, including before it returns. A payment that reaches a
// terminal state that early still gets its outcome delivered on the
// returned receipt.
func (c *Coordinator) CreatePayment(ctx context.Context, req Request) (*Receipt, error) {
	sess, err := c.sessions.Current()
	if err != nil {
		return nil, err
	}

	if verr := c.validateRequest(req); verr != nil {
		return nil, verr
	}

	correlationID := uuid.NewString()
	log := c.logger.With("correlation_id", correlationID, "amount", req.Amount)
	start := c.now()

	metadata := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["userId"] = sess.UID
	metadata["initiatedAt"] = start.UTC().Format(time.RFC3339)
	metadata["checksum"] = checksum(req.Amount, req.Memo, sess.UID, start)

	fl := &inflight{
		receipt: &Receipt{CorrelationID: correlationID, done: make(chan Outcome, 1)},
		entry: domain.Pending{
			CorrelationID: correlationID,
			Amount:        req.Amount,
			Memo:          req.Memo,
			Metadata:      metadata,
			Status:        domain.StatusCreated,
			CreatedAt:     start,
		},
	}
	callbacks := sdk.PaymentCallbacks{
		OnReadyForServerApproval:   func(paymentID string) { c.handleApproval(fl, paymentID) },
		OnReadyForServerCompletion: func(paymentID, txID string) { c.handleCompletion(fl, paymentID, txID) },
		OnCancel:                   func(paymentID string) { c.handleCancel(fl, paymentID) },
		OnError:                    func(err error, p *sdk.IncompletePayment) { c.handleError(fl, err, p) },
	}

	res, err := c.sdk.CreatePayment(ctx, sdk.PaymentRequest{
		Amount:   req.Amount,
		Memo:     req.Memo,
		Metadata: metadata,
	}, callbacks)
	if err != nil {
		// Suppress any stray callbacks for a creation the caller never
		// saw succeed.
		fl.mu.Lock()
		fl.terminal = true
		fl.mu.Unlock()
		log.Error("payment creation failed",
			"error", err, "elapsed", c.now().Sub(start))
		return nil, &domain.SdkError{Cause: err}
	}

	c.register(fl, res.PaymentID)
	fl.receipt.Status = res.Status

	log.Info("payment initiated", "payment_id", res.PaymentID, "memo", req.Memo)
	return fl.receipt, nil
}

func (c *Coordinator) validateRequest(req Request) error {
	var reasons []string
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Amount" {
					reasons = append(reasons, "amount must be greater than 0")
				}
			}
		}
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < 0 {
		reasons = append(reasons, "amount must be a finite positive number")
	}
	if c.cfg.MaxAmount > 0 && req.Amount > c.cfg.MaxAmount {
		reasons = append(reasons, fmt.Sprintf("amount exceeds maximum of %g", c.cfg.MaxAmount))
	}
	if strings.TrimSpace(req.Memo) == "" {
		reasons = append(reasons, "payment memo is required")
	}
	if c.cfg.MemoLimit > 0 && utf8.RuneCountInString(req.Memo) > c.cfg.MemoLimit {
		// Over-length memos are rejected, never truncated: the memo is what
		// the user signs on the phone.
		reasons = append(reasons, fmt.Sprintf("memo exceeds %d character limit", c.cfg.MemoLimit))
	}
	if len(reasons) > 0 {
		return &domain.ValidationError{Reasons: reasons}
	}
	return nil
}

func checksum(amount float64, memo, userID string, at time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%g:%s:%s:%d", amount, memo, userID, at.UnixMilli()))
	return hex.EncodeToString(sum[:])
}

// register binds the SDK-assigned payment ID to the in-flight record,
// publishes it in the registry and arms the watchdog. Called both when
// CreatePayment returns and at the top of every callback, so whichever
// side learns the ID first wins; it is a no-op once the payment is bound
// or terminal.
func (c *Coordinator) register(fl *inflight, paymentID string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.id == "" && paymentID != "" {
		fl.id = paymentID
		fl.entry.PaymentID = paymentID
		fl.receipt.PaymentID = paymentID
	}
	if fl.terminal || fl.bound || fl.id == "" {
		return
	}
	fl.bound = true
	c.pending.Set(fl.entry)
	fl.watchdog = time.AfterFunc(c.cfg.Timeout, func() { c.handleTimeout(fl) })
	c.mu.Lock()
	c.inflight[fl.id] = fl
	c.mu.Unlock()
}

func (c *Coordinator) handleApproval(fl *inflight, paymentID string) {
	c.register(fl, paymentID)
	log := c.logger.With("payment_id", paymentID)

	fl.mu.Lock()
	if err := domain.Transition(fl.entry.Status, domain.StatusServerApproval); err != nil {
		status := fl.entry.Status
		fl.mu.Unlock()
		log.Warn("dropping approval callback", "error", err, "status", status)
		return
	}
	fl.entry.Status = domain.StatusServerApproval
	entry := fl.entry
	c.pending.Set(entry)
	fl.mu.Unlock()

	log.Info("payment ready for server approval")

	c.bus.Emit(context.Background(), events.PaymentServerApproval{
		PaymentID: paymentID,
		Amount:    entry.Amount,
		Memo:      entry.Memo,
	})
	c.notifyApprove(paymentID)
}

func (c *Coordinator) handleCompletion(fl *inflight, paymentID, txID string) {
	c.register(fl, paymentID)
	log := c.logger.With("payment_id", paymentID, "txid", txID)

	fl.mu.Lock()
	if err := domain.Transition(fl.entry.Status, domain.StatusServerCompletion); err != nil {
		status := fl.entry.Status
		fl.mu.Unlock()
		log.Warn("dropping completion callback", "error", err, "status", status)
		return
	}
	fl.entry.Status = domain.StatusServerCompletion
	fl.entry.TxID = txID
	entry := fl.entry
	c.pending.Set(entry)
	fl.mu.Unlock()

	log.Info("payment ready for server completion")

	c.bus.Emit(context.Background(), events.PaymentServerCompletion{
		PaymentID: paymentID,
		TxID:      txID,
		Amount:    entry.Amount,
		Memo:      entry.Memo,
	})
	c.notifyComplete(paymentID, txID)
}

func (c *Coordinator) handleCancel(fl *inflight, paymentID string) {
	c.register(fl, paymentID)
	if !c.terminate(fl, domain.StatusCancelled, &domain.CancelledError{PaymentID: paymentID}) {
		return
	}
	c.logger.Warn("payment cancelled by user", "payment_id", paymentID)
	c.bus.Emit(context.Background(), events.PaymentCancelled{
		PaymentID: paymentID,
		Reason:    "user_cancelled",
	})
	c.notifyCancelled(paymentID)
}

// handleError terminates its own payment even when the SDK passes a nil
// payment reference, which it does for failures before the payment object
// materializes.
func (c *Coordinator) handleError(fl *inflight, err error, p *sdk.IncompletePayment) {
	if p != nil {
		c.register(fl, p.Identifier)
	}
	paymentID := fl.paymentID()
	if !c.terminate(fl, domain.StatusError, &domain.SdkError{PaymentID: paymentID, Cause: err}) {
		return
	}
	c.logger.Error("payment failed", "payment_id", paymentID, "error", err)
	c.bus.Emit(context.Background(), events.PaymentError{
		PaymentID: paymentID,
		Error:     err.Error(),
	})
}

func (c *Coordinator) handleTimeout(fl *inflight) {
	fl.mu.Lock()
	paymentID := fl.id
	createdAt := fl.entry.CreatedAt
	fl.mu.Unlock()

	waited := c.now().Sub(createdAt)
	if !c.terminate(fl, domain.StatusTimedOut, &domain.TimeoutError{
		PaymentID: paymentID,
		Waited:    waited.Round(time.Second).String(),
	}) {
		return
	}
	c.logger.Warn("payment timed out", "payment_id", paymentID, "waited", waited)
	c.bus.Emit(context.Background(), events.PaymentTimeout{
		PaymentID: paymentID,
		Waited:    waited,
	})
}

// terminate moves a payment to a terminal status, removes it from tracking,
// stops the watchdog and delivers the outcome exactly once. It reports false
// when the payment has already terminated. Terminal exits are legal from any
// live status; only the first one wins.
func (c *Coordinator) terminate(fl *inflight, to domain.Status, cause error) bool {
	fl.mu.Lock()
	if fl.terminal {
		fl.mu.Unlock()
		return false
	}
	fl.terminal = true
	fl.entry.Status = to
	paymentID := fl.id
	wd := fl.watchdog
	fl.mu.Unlock()

	if wd != nil {
		wd.Stop()
	}
	if paymentID != "" {
		c.pending.Delete(paymentID)
		c.mu.Lock()
		delete(c.inflight, paymentID)
		c.mu.Unlock()
	}
	fl.once.Do(func() {
		fl.receipt.done <- Outcome{PaymentID: paymentID, Status: to, Err: cause}
		close(fl.receipt.done)
	})
	return true
}

// VerifyPayment confirms settlement with the backend. On success the entry
// is removed from the registry and a nil-error outcome is delivered.
func (c *Coordinator) VerifyPayment(ctx context.Context, paymentID string) verification.Result {
	userID, token := c.credentials()
	result := c.verifier.Verify(ctx, paymentID, userID, token)
	if result.Verified {
		// Settlement is authoritative: the verified outcome is delivered
		// even when the local record never saw the completion callback.
		c.mu.Lock()
		fl := c.inflight[paymentID]
		c.mu.Unlock()
		if fl != nil {
			c.terminate(fl, domain.StatusVerified, nil)
		} else {
			c.pending.Delete(paymentID)
		}
		c.bus.Emit(ctx, events.PaymentVerified{PaymentID: paymentID})
	} else {
		c.bus.Emit(ctx, events.PaymentVerificationFailed{
			PaymentID: paymentID,
			Reason:    result.Reason,
		})
	}
	return result
}

// ReconcileIncomplete handles a payment left over from a previous session,
// surfaced by the SDK during authentication. Failures are reported as
// events only; reconciliation never blocks or fails authentication.
func (c *Coordinator) ReconcileIncomplete(ctx context.Context, p sdk.IncompletePayment) {
	log := c.logger.With("payment_id", p.Identifier)
	log.Info("reconciling incomplete payment")
	result := c.VerifyPayment(ctx, p.Identifier)
	if !result.Verified {
		log.Warn("incomplete payment could not be verified", "reason", result.Reason)
	}
}

// PendingPayments returns a diagnostic snapshot of in-flight payments.
func (c *Coordinator) PendingPayments() []domain.Pending {
	return c.pending.Values()
}

// ClearPending drops all in-flight tracking. Called on sign-out. Receipts of
// dropped payments never receive an outcome; their payments can only be
// recovered through incomplete-payment reconciliation at next sign-in.
func (c *Coordinator) ClearPending() {
	c.pending.Clear()
	c.mu.Lock()
	fls := make([]*inflight, 0, len(c.inflight))
	for id, fl := range c.inflight {
		fls = append(fls, fl)
		delete(c.inflight, id)
	}
	c.mu.Unlock()
	for _, fl := range fls {
		fl.mu.Lock()
		fl.terminal = true
		wd := fl.watchdog
		fl.mu.Unlock()
		if wd != nil {
			wd.Stop()
		}
	}
}

func (c *Coordinator) credentials() (userID, token string) {
	sess, err := c.sessions.Current()
	if err != nil {
		return "", ""
	}
	return sess.UID, sess.AccessToken
}

func (c *Coordinator) notifyApprove(paymentID string) {
	if c.notifier == nil {
		return
	}
	_, token := c.credentials()
	go c.notifier.Approve(context.Background(), token, paymentID)
}

func (c *Coordinator) notifyComplete(paymentID, txID string) {
	if c.notifier == nil {
		return
	}
	_, token := c.credentials()
	go c.notifier.Complete(context.Background(), token, paymentID, txID)
}

func (c *Coordinator) notifyCancelled(paymentID string) {
	if c.notifier == nil {
		return
	}
	_, token := c.credentials()
	go c.notifier.Cancelled(context.Background(), token, paymentID)
}
