// Package session defines the authenticated-user context obtained from the
// Pi Network SDK and its validity rules.
package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoActiveSession is returned when an operation requires an
	// authenticated user and none is present.
	ErrNoActiveSession = errors.New("no active session: user must authenticate first")
	// ErrSessionExpired is returned when the session's computed expiry has passed.
	ErrSessionExpired = errors.New("session expired: user must re-authenticate")
	// ErrSDKNotInitialized is returned when the SDK has not completed Init.
	ErrSDKNotInitialized = errors.New("pi sdk not initialized")
)

// AuthenticationError wraps an SDK authentication failure, cancellation, or
// rejection with the underlying cause preserved.
type AuthenticationError struct {
	Cause error
}

func (e *AuthenticationError) Error() string {
	if e.Cause == nil {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed: %s", e.Cause.Error())
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// Session is the authenticated-user context. It is owned exclusively by the
// session manager; other components receive read-only copies.
type Session struct {
	UID             string
	Username        string
	AccessToken     string
	Scopes          []string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
}

// New builds a session authenticated at now with the given validity window.
func New(uid, username, accessToken string, scopes []string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		UID:             uid,
		Username:        username,
		AccessToken:     accessToken,
		Scopes:          append([]string(nil), scopes...),
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(ttl),
	}
}

// Valid reports whether the session exists and has not expired at t.
// Expiry is computed, not timer-enforced; callers check at point of use.
func (s *Session) Valid(t time.Time) bool {
	return s != nil && t.Before(s.ExpiresAt)
}

// HasScope reports whether the given permission scope was granted.
func (s *Session) HasScope(scope string) bool {
	if s == nil {
		return false
	}
	for _, granted := range s.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}
