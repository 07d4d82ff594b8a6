package causality

import "sync"

// Tracker maintains one session's logical clock.
//
// Stamp ticks the local slot and returns a snapshot for an operation about
// to be emitted; Observe folds a received remote clock into the local one.
//
// Thread-safety: all methods are safe for concurrent use. In the room
// pipeline only the single-writer loop calls Observe, but transport code
// may Stamp from its own goroutines.
type Tracker struct {
	mu      sync.Mutex
	session string
	clock   VectorClock
}

// NewTracker creates a tracker for a session with an empty clock.
func NewTracker(session string) *Tracker {
	return &Tracker{
		session: session,
		clock:   NewVectorClock(),
	}
}

// Session returns the session id this tracker stamps for.
func (t *Tracker) Session() string {
	return t.session
}

// Stamp ticks the local slot and returns a snapshot of the clock.
// Each call returns a strictly later clock for this session's slot.
func (t *Tracker) Stamp() VectorClock {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.Tick(t.session)
	return t.clock.Copy()
}

// Observe folds a remote operation's clock into the local clock.
// Unknown session slots are adopted; known slots take the maximum.
func (t *Tracker) Observe(remote VectorClock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.Merge(remote)
}

// Now returns a snapshot of the current clock without ticking.
func (t *Tracker) Now() VectorClock {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.clock.Copy()
}
