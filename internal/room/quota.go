package room

import "sync"

// DefaultMaxPending is the default in-flight operation allowance per session.
const DefaultMaxPending = 256

// sessionQuota bounds how many submitted operations a session may have
// unsettled at once. A runaway or stuck client hits its own ceiling instead
// of growing the room queue without bound.
//
// Admission happens on the submitting goroutine, settlement in the Run
// loop, so the counters are mutex-guarded.
type sessionQuota struct {
	mu         sync.Mutex
	maxPending int
	pending    map[string]int
}

func newSessionQuota(maxPending int) *sessionQuota {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &sessionQuota{
		maxPending: maxPending,
		pending:    make(map[string]int),
	}
}

// Admit reserves one in-flight slot for the session.
// Returns a quota rejection when the session is at its ceiling.
func (q *sessionQuota) Admit(session string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending[session] >= q.maxPending {
		return quotaError(session, q.pending[session], q.maxPending)
	}
	q.pending[session]++
	return nil
}

// Settle releases one in-flight slot after the operation finalizes or is
// rejected downstream of admission.
func (q *sessionQuota) Settle(session string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending[session] <= 1 {
		delete(q.pending, session)
		return
	}
	q.pending[session]--
}

// Drop clears the session's slots when it leaves the room.
func (q *sessionQuota) Drop(session string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.pending, session)
}

// Pending returns the session's current in-flight count.
func (q *sessionQuota) Pending(session string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pending[session]
}
