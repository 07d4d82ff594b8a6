// Package lock implements advisory, TTL-bounded field locks.
//
// Locks are an editing courtesy, not a correctness mechanism: the conflict
// pipeline resolves concurrent writes whether or not a lock was held. A lock
// tells other participants "someone is typing here" so well-behaved clients
// avoid creating the conflict in the first place.
package lock

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTTL bounds how long a lease survives without renewal. Expiry is the
// only defense against a participant that disconnects mid-edit.
const DefaultTTL = 30 * time.Second

// Key identifies a lockable slot: one field of one entity.
type Key struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
}

func (k Key) String() string {
	return k.EntityID + "." + k.Field
}

// Lease is a granted lock with its expiry.
type Lease struct {
	Key       Key       `json:"key"`
	Session   string    `json:"session"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HeldError reports an acquisition attempt on a slot another session holds.
type HeldError struct {
	Key       Key
	Holder    string
	ExpiresAt time.Time
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock %s held by session %s", e.Key, e.Holder)
}

// NotHeldError reports a release by a session that does not hold the lease.
type NotHeldError struct {
	Key     Key
	Session string
}

func (e *NotHeldError) Error() string {
	return fmt.Sprintf("lock %s not held by session %s", e.Key, e.Session)
}

// Manager tracks the advisory leases for one room.
//
// INVARIANT: at most one unexpired lease exists per key. Expired leases are
// treated as absent on every access, so expiry needs no background sweeper.
type Manager struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	leases map[Key]Lease
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the lease duration.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithNow overrides the time source. Tests use a deterministic clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lock manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		ttl:    DefaultTTL,
		now:    time.Now,
		leases: make(map[Key]Lease),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire grants or renews a lease for the session.
//
// The holding session renews its own lease, pushing the expiry out by one
// TTL. Any other session gets a HeldError until the lease expires or is
// released.
func (m *Manager) Acquire(key Key, session string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.leases[key]; ok && cur.ExpiresAt.After(now) && cur.Session != session {
		return Lease{}, &HeldError{Key: key, Holder: cur.Session, ExpiresAt: cur.ExpiresAt}
	}

	lease := Lease{Key: key, Session: session, ExpiresAt: now.Add(m.ttl)}
	m.leases[key] = lease
	return lease, nil
}

// Release drops the session's lease on a key.
func (m *Manager) Release(key Key, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leases[key]
	if !ok || !cur.ExpiresAt.After(m.now()) || cur.Session != session {
		return &NotHeldError{Key: key, Session: session}
	}
	delete(m.leases, key)
	return nil
}

// ReleaseSession drops every lease the session holds. Called when a session
// leaves the room. Returns the number of leases released.
func (m *Manager) ReleaseSession(session string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	now := m.now()
	for key, cur := range m.leases {
		if cur.Session != session {
			continue
		}
		delete(m.leases, key)
		if cur.ExpiresAt.After(now) {
			released++
		}
	}
	return released
}

// Holder returns the session holding an unexpired lease on key.
func (m *Manager) Holder(key Key) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leases[key]
	if !ok || !cur.ExpiresAt.After(m.now()) {
		return "", false
	}
	return cur.Session, true
}

// Leases returns every unexpired lease. Expired entries are dropped as a
// side effect.
func (m *Manager) Leases() []Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Lease, 0, len(m.leases))
	for key, cur := range m.leases {
		if !cur.ExpiresAt.After(now) {
			delete(m.leases, key)
			continue
		}
		out = append(out, cur)
	}
	return out
}
