package session_test

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaceofquests/pinet/infra/cache"
	"github.com/palaceofquests/pinet/infra/sdkmock"
	domain "github.com/palaceofquests/pinet/pkg/domain/session"
	"github.com/palaceofquests/pinet/pkg/eventbus"
	"github.com/palaceofquests/pinet/pkg/sdk"
	sessionsvc "github.com/palaceofquests/pinet/pkg/service/session"
)

// TestMain runs before any tests and applies globally for all tests in the package.
func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeReconciler struct {
	mu         sync.Mutex
	reconciled []string
	cleared    int
}

func (f *fakeReconciler) ReconcileIncomplete(_ context.Context, p sdk.IncompletePayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciled = append(f.reconciled, p.Identifier)
}

func (f *fakeReconciler) ClearPending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeReconciler) reconciledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reconciled...)
}

func (f *fakeReconciler) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func newManager(t *testing.T, mock *sdkmock.Client, cfg sessionsvc.Config) (*sessionsvc.Manager, *eventbus.MemoryBus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.NewMemoryBus(logger)
	return sessionsvc.NewManager(mock, bus, cache.NewSessionCache(), cfg, logger), bus
}

func countEvents(bus *eventbus.MemoryBus, eventType string) int {
	n := 0
	for _, e := range bus.Published() {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func TestInitializeSuccess(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, bus := newManager(t, mock, sessionsvc.Config{})

	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.Initialized())
	assert.Equal(t, 1, countEvents(bus, "sdk_initialized"))
}

func TestInitializeRetriesInBackground(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	mock.ScriptInitFailures(errors.New("sdk unavailable"), errors.New("sdk unavailable"))
	m, bus := newManager(t, mock, sessionsvc.Config{RetryInterval: 5 * time.Millisecond})

	// A failed first attempt must not fail the caller.
	require.NoError(t, m.Initialize(context.Background()))
	assert.False(t, m.Initialized())
	assert.GreaterOrEqual(t, countEvents(bus, "sdk_error"), 1)

	require.Eventually(t, m.Initialized, time.Second, 5*time.Millisecond,
		"background retry should eventually succeed")
	assert.Equal(t, 1, countEvents(bus, "sdk_initialized"))
	assert.GreaterOrEqual(t, mock.InitCalls(), 3)
}

func TestAuthenticateBeforeInit(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, _ := newManager(t, mock, sessionsvc.Config{})

	_, err := m.Authenticate(context.Background(), nil)
	require.Error(t, err)
	var aerr *domain.AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, domain.ErrSDKNotInitialized)
}

func TestAuthenticateSuccess(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, bus := newManager(t, mock, sessionsvc.Config{TTL: time.Hour})
	require.NoError(t, m.Initialize(context.Background()))

	sess, err := m.Authenticate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pioneer", sess.Username)
	assert.Equal(t, sessionsvc.DefaultScopes, sess.Scopes, "default scopes requested when none given")
	assert.True(t, sess.HasScope("payments"))
	assert.Equal(t, 1, countEvents(bus, "user_authenticated"))

	current, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, sess.UID, current.UID)
}

func TestAuthenticateFailureClearsPartialState(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, bus := newManager(t, mock, sessionsvc.Config{})
	require.NoError(t, m.Initialize(context.Background()))

	// First a successful login, then a failing one: the old session must not
	// linger as a partially authenticated state.
	_, err := m.Authenticate(context.Background(), nil)
	require.NoError(t, err)

	mock.ScriptAuth(nil, errors.New("user rejected the dialog"))
	_, err = m.Authenticate(context.Background(), nil)
	require.Error(t, err)
	var aerr *domain.AuthenticationError
	assert.ErrorAs(t, err, &aerr)
	assert.Contains(t, err.Error(), "user rejected the dialog")

	_, err = m.Current()
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	assert.Equal(t, 1, countEvents(bus, "authentication_error"))
}

func TestAuthenticateNoUserData(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	mock.ScriptAuth(&sdk.AuthResult{AccessToken: "token"}, nil)
	m, _ := newManager(t, mock, sessionsvc.Config{})
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.Authenticate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user data received")
}

func TestIncompletePaymentsForwardedToReconciler(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	mock.ScriptIncomplete(
		sdk.IncompletePayment{Identifier: "pay_old_1"},
		sdk.IncompletePayment{Identifier: "pay_old_2"},
	)
	m, _ := newManager(t, mock, sessionsvc.Config{})
	rec := &fakeReconciler{}
	m.SetReconciler(rec)
	require.NoError(t, m.Initialize(context.Background()))

	// Authentication completes without waiting for reconciliation.
	_, err := m.Authenticate(context.Background(), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.reconciledIDs()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"pay_old_1", "pay_old_2"}, rec.reconciledIDs())
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, _ := newManager(t, mock, sessionsvc.Config{TTL: 10 * time.Millisecond})
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.Authenticate(context.Background(), nil)
	require.NoError(t, err)
	_, err = m.Current()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = m.Current()
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()
	t.Run("not authenticated", func(t *testing.T) {
		t.Parallel()
		mock := sdkmock.New()
		m, _ := newManager(t, mock, sessionsvc.Config{})
		require.NoError(t, m.Initialize(context.Background()))
		assert.False(t, m.CheckStatus(context.Background()))
	})
	t.Run("authenticated reconstructs session", func(t *testing.T) {
		t.Parallel()
		mock := sdkmock.New()
		mock.ScriptAuthStatus(&sdk.AuthStatus{
			Authenticated: true,
			User:          &sdk.User{UID: "uid_7", Username: "quester"},
			AccessToken:   "token_7",
		})
		m, _ := newManager(t, mock, sessionsvc.Config{TTL: time.Hour})
		require.NoError(t, m.Initialize(context.Background()))

		assert.True(t, m.CheckStatus(context.Background()))
		sess, err := m.Current()
		require.NoError(t, err)
		assert.Equal(t, "uid_7", sess.UID)
	})
	t.Run("before init", func(t *testing.T) {
		t.Parallel()
		mock := sdkmock.New()
		m, _ := newManager(t, mock, sessionsvc.Config{})
		assert.False(t, m.CheckStatus(context.Background()))
	})
}

func TestSignOutIsIdempotent(t *testing.T) {
	t.Parallel()
	mock := sdkmock.New()
	m, bus := newManager(t, mock, sessionsvc.Config{})
	rec := &fakeReconciler{}
	m.SetReconciler(rec)
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.Authenticate(context.Background(), nil)
	require.NoError(t, err)

	m.SignOut()
	_, err = m.Current()
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	assert.Equal(t, 1, rec.clearCount())

	// Signing out twice produces the same end state.
	m.SignOut()
	_, err = m.Current()
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	assert.Equal(t, 2, countEvents(bus, "user_signed_out"))
}
