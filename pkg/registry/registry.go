// Package registry tracks in-flight payments by their SDK-issued payment
// identifier.
package registry

import (
	"sync"

	"github.com/palaceofquests/pinet/pkg/domain/payment"
)

// Pending is a thread-safe registry of in-flight payments. It is mutated
// only by the payment coordinator; other components read snapshots.
type Pending struct {
	entries map[string]payment.Pending
	mu      sync.RWMutex
}

// New creates a new empty registry.
func New() *Pending {
	return &Pending{
		entries: make(map[string]payment.Pending),
	}
}

// Get returns the entry for the given payment ID.
func (r *Pending) Get(paymentID string) (payment.Pending, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[paymentID]
	return p, ok
}

// Set adds or updates an entry.
func (r *Pending) Set(p payment.Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.PaymentID] = p
}

// Delete removes an entry. Deleting an absent ID is a no-op.
func (r *Pending) Delete(paymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, paymentID)
}

// Values returns a snapshot of all entries. Iterating the snapshot is never
// invalidated by concurrent mutation.
func (r *Pending) Values() []payment.Pending {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]payment.Pending, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	return out
}

// Len returns the number of in-flight payments.
func (r *Pending) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all entries. Used on sign-out.
func (r *Pending) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]payment.Pending)
}
