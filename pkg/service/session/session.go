// Package session maintains at most one active session and mediates all
// authentication attempts against the Pi SDK.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/palaceofquests/pinet/infra/cache"
	"github.com/palaceofquests/pinet/pkg/domain/events"
	domain "github.com/palaceofquests/pinet/pkg/domain/session"
	"github.com/palaceofquests/pinet/pkg/eventbus"
	"github.com/palaceofquests/pinet/pkg/sdk"
)

// DefaultScopes are requested when the caller passes none.
var DefaultScopes = []string{"username", "payments"}

// PaymentReconciler is the coordinator surface the session manager needs:
// forwarding incomplete payments found mid-authentication and clearing
// in-flight tracking on sign-out.
type PaymentReconciler interface {
	ReconcileIncomplete(ctx context.Context, p sdk.IncompletePayment)
	ClearPending()
}

// Config governs SDK setup and session validity.
type Config struct {
	SDK            sdk.Config
	TTL            time.Duration
	CacheKey       string
	RetryInterval  time.Duration
	InitMaxElapsed time.Duration
}

// Manager owns the session slot. Only the manager writes it; other
// components receive read-only copies through Current.
type Manager struct {
	sdk    sdk.Client
	bus    eventbus.Bus
	cache  *cache.SessionCache
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	sess        *domain.Session
	initialized bool

	reconciler PaymentReconciler

	now func() time.Time
}

// NewManager wires a session manager. The cache may be nil to disable
// session mirroring.
func NewManager(client sdk.Client, bus eventbus.Bus, sessionCache *cache.SessionCache, cfg Config, logger *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CacheKey == "" {
		cfg.CacheKey = "pi_session"
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Manager{
		sdk:    client,
		bus:    bus,
		cache:  sessionCache,
		cfg:    cfg,
		logger: logger.With("service", "session"),
		now:    time.Now,
	}
}

// SetReconciler attaches the payment coordinator. Wiring is two-phase
// because the coordinator also depends on this manager for sessions.
func (m *Manager) SetReconciler(r PaymentReconciler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciler = r
}

// Initialize performs one-time SDK setup. A failed first attempt never
// fails the caller: setup keeps retrying in the background with a constant
// backoff, emitting sdk_error per failed attempt and sdk_initialized once
// it succeeds.
func (m *Manager) Initialize(ctx context.Context) error {
	log := m.logger.With("context", "Initialize")
	err := m.tryInit(ctx)
	if err == nil {
		return nil
	}
	log.Error("SDK initialization failed, retrying in background", "error", err)

	go func() {
		b := backoff.NewConstantBackOff(m.cfg.RetryInterval)
		var policy backoff.BackOff = b
		if m.cfg.InitMaxElapsed > 0 {
			policy = backoff.WithMaxRetries(b,
				uint64(m.cfg.InitMaxElapsed/m.cfg.RetryInterval))
		}
		err := backoff.Retry(func() error {
			return m.tryInit(ctx)
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			log.Error("SDK initialization abandoned", "error", err)
		}
	}()
	return nil
}

func (m *Manager) tryInit(ctx context.Context) error {
	err := m.sdk.Init(ctx, m.cfg.SDK)
	if err != nil {
		m.bus.Emit(ctx, events.SDKError{
			Kind:  "initialization",
			Error: err.Error(),
			At:    m.now(),
		})
		return err
	}
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.logger.Info("Pi SDK initialized", "sandbox", m.cfg.SDK.Sandbox, "version", m.cfg.SDK.Version)
	m.bus.Emit(ctx, events.SDKInitialized{Sandbox: m.cfg.SDK.Sandbox, At: m.now()})
	return nil
}

// Initialized reports whether SDK setup has completed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// CheckStatus queries the SDK for the current authentication state and
// reconstructs the session when authenticated. It never returns an error:
// SDK failures are logged and reported as false.
func (m *Manager) CheckStatus(ctx context.Context) bool {
	log := m.logger.With("context", "CheckStatus")
	if !m.Initialized() {
		log.Debug("SDK not initialized yet")
		return false
	}
	status, err := m.sdk.AuthStatus(ctx)
	if err != nil {
		log.Warn("could not verify authentication status", "error", err)
		return false
	}
	if !status.Authenticated || status.User == nil {
		return false
	}
	sess := domain.New(
		status.User.UID,
		status.User.Username,
		status.AccessToken,
		nil,
		m.now(),
		m.cfg.TTL,
	)
	m.store(sess)
	log.Info("authentication verified", "username", sess.Username)
	return true
}

// Authenticate requests user authentication for the given permission
// scopes. Incomplete payments surfaced by the SDK mid-authentication are
// forwarded to the coordinator asynchronously; authentication completion
// does not wait for reconciliation. Any failure clears partial session
// state before the error is returned.
func (m *Manager) Authenticate(ctx context.Context, scopes []string) (*domain.Session, error) {
	log := m.logger.With("context", "Authenticate")
	if !m.Initialized() {
		return nil, m.authFailed(ctx, domain.ErrSDKNotInitialized)
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	start := m.now()

	opts := sdk.AuthOptions{
		Scopes: scopes,
		OnIncompletePaymentFound: func(p sdk.IncompletePayment) {
			log.Info("incomplete payment found", "payment_id", p.Identifier)
			m.mu.RLock()
			r := m.reconciler
			m.mu.RUnlock()
			if r == nil {
				log.Warn("no reconciler attached, incomplete payment dropped",
					"payment_id", p.Identifier)
				return
			}
			go r.ReconcileIncomplete(context.WithoutCancel(ctx), p)
		},
	}

	result, err := m.sdk.Authenticate(ctx, opts)
	if err != nil {
		log.Error("authentication failed", "error", err, "elapsed", m.now().Sub(start))
		return nil, m.authFailed(ctx, err)
	}
	if result == nil || result.User == nil {
		return nil, m.authFailed(ctx, errors.New("no user data received"))
	}

	sess := domain.New(
		result.User.UID,
		result.User.Username,
		result.AccessToken,
		scopes,
		m.now(),
		m.cfg.TTL,
	)
	m.store(sess)

	log.Info("user authenticated",
		"username", sess.Username,
		"scopes", scopes,
		"elapsed", m.now().Sub(start))
	m.bus.Emit(ctx, events.UserAuthenticated{Session: sess})
	return sess, nil
}

// authFailed clears any partial session state so no partially authenticated
// condition can persist, then returns the typed error.
func (m *Manager) authFailed(ctx context.Context, cause error) error {
	m.mu.Lock()
	m.sess = nil
	m.mu.Unlock()
	if m.cache != nil {
		m.cache.Delete(m.cfg.CacheKey)
	}
	m.bus.Emit(ctx, events.AuthenticationError{Error: cause.Error(), At: m.now()})
	return &domain.AuthenticationError{Cause: cause}
}

func (m *Manager) store(sess *domain.Session) {
	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	if m.cache != nil {
		m.cache.Set(m.cfg.CacheKey, sess)
	}
}

// Current returns the active session, or ErrNoActiveSession /
// ErrSessionExpired. Expiry is checked here, at point of use.
func (m *Manager) Current() (*domain.Session, error) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}
	if !sess.Valid(m.now()) {
		return nil, domain.ErrSessionExpired
	}
	return sess, nil
}

// SignOut clears the session, the session cache and all in-flight payment
// tracking. It is idempotent and always succeeds; a 401-class backend
// response anywhere triggers it automatically.
func (m *Manager) SignOut() {
	m.mu.Lock()
	had := m.sess != nil
	username := ""
	if had {
		username = m.sess.Username
	}
	m.sess = nil
	r := m.reconciler
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Delete(m.cfg.CacheKey)
	}
	if r != nil {
		r.ClearPending()
	}
	if had {
		m.logger.Info("user signed out", "username", username)
	}
	m.bus.Emit(context.Background(), events.UserSignedOut{})
}
