// Package causality tracks the causal order of operations across editing
// sessions using vector clocks.
//
// Every session carries one counter slot per known session. A slot missing
// from a clock reads as zero - an operation whose clock references a session
// we have never seen is safe to compare, never fatal.
//
// Wall-clock time is NEVER used for ordering. The partial order computed
// here (before / after / concurrent) is the sole input to conflict
// detection, and the deterministic total order used for tie-breaks is
// derived from session identifiers (see internal/conflict).
package causality

// VectorClock maps session ids to per-session operation counters.
type VectorClock map[string]int64

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// Before means clock A is causally before clock B.
	Before Ordering = iota + 1
	// After means clock A is causally after clock B.
	After
	// Equal means the clocks are identical.
	Equal
	// Concurrent means neither clock dominates the other.
	Concurrent
)

// String returns the ordering name for logs and test failures.
func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// NewVectorClock creates an empty vector clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Copy returns an independent copy of the clock.
func (vc VectorClock) Copy() VectorClock {
	out := make(VectorClock, len(vc))
	for session, counter := range vc {
		out[session] = counter
	}
	return out
}

// Get returns the counter for a session; unknown slots read as zero.
func (vc VectorClock) Get(session string) int64 {
	return vc[session]
}

// Tick increments the slot for a session and returns the new counter.
func (vc VectorClock) Tick(session string) int64 {
	vc[session]++
	return vc[session]
}

// Merge folds another clock into this one by element-wise maximum.
func (vc VectorClock) Merge(other VectorClock) {
	for session, counter := range other {
		if vc[session] < counter {
			vc[session] = counter
		}
	}
}

// Merged returns a new clock that is the element-wise maximum of both.
func (vc VectorClock) Merged(other VectorClock) VectorClock {
	out := vc.Copy()
	out.Merge(other)
	return out
}

// Sum returns the total of all counters. Used as the "last writer" component
// of the deterministic tie-break order: a higher sum reflects more observed
// history at emission time.
func (vc VectorClock) Sum() int64 {
	var total int64
	for _, counter := range vc {
		total += counter
	}
	return total
}

// Compare classifies the relation of clock A (receiver) to clock B.
// Standard partial-order rule: A is Before B iff every slot of A is <= the
// corresponding slot of B and at least one is strictly less. Missing slots
// on either side compare as zero.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	aLess := false
	bLess := false

	for session, a := range vc {
		b := other[session]
		if a < b {
			aLess = true
		} else if a > b {
			bLess = true
		}
	}
	for session, b := range other {
		if _, seen := vc[session]; seen {
			continue
		}
		if b > 0 {
			aLess = true
		}
	}

	switch {
	case aLess && bLess:
		return Concurrent
	case aLess:
		return Before
	case bLess:
		return After
	default:
		return Equal
	}
}

// Dominates reports whether this clock is causally at-or-after the other,
// i.e. the other clock's effects are already reflected. Used by the
// reconciler for stale-operation detection under at-least-once delivery.
func (vc VectorClock) Dominates(other VectorClock) bool {
	ord := vc.Compare(other)
	return ord == After || ord == Equal
}
