// Package cache provides an ephemeral in-memory session store, the
// equivalent of per-tab session storage: cleared on sign-out, never
// persisted.
package cache

import (
	"sync"
	"time"

	"github.com/palaceofquests/pinet/pkg/domain/session"
)

type entry struct {
	sess      *session.Session
	expiresAt time.Time
}

// SessionCache is a TTL keyed store for session records.
type SessionCache struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]entry)}
}

// Get retrieves a cached session. Expired entries are treated as absent.
func (c *SessionCache) Get(key string) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.sess, true
}

// Set stores a session under key until its own expiry.
func (c *SessionCache) Set(key string, sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{sess: sess, expiresAt: sess.ExpiresAt}
}

// Delete removes a cached session.
func (c *SessionCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
