package causality

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_StampTicksLocalSlot(t *testing.T) {
	tr := NewTracker("s1")
	assert.Equal(t, "s1", tr.Session())

	first := tr.Stamp()
	second := tr.Stamp()

	assert.Equal(t, VectorClock{"s1": 1}, first)
	assert.Equal(t, VectorClock{"s1": 2}, second)
	assert.Equal(t, Before, first.Compare(second))
}

func TestTracker_StampReturnsSnapshot(t *testing.T) {
	tr := NewTracker("s1")

	stamped := tr.Stamp()
	stamped.Tick("s1")

	// Mutating the returned clock does not touch the tracker.
	assert.Equal(t, VectorClock{"s1": 1}, tr.Now())
}

func TestTracker_ObserveAdoptsRemoteSlots(t *testing.T) {
	tr := NewTracker("s1")
	tr.Stamp()

	tr.Observe(VectorClock{"s2": 4})
	stamped := tr.Stamp()

	assert.Equal(t, VectorClock{"s1": 2, "s2": 4}, stamped)
	assert.Equal(t, After, stamped.Compare(VectorClock{"s2": 4}))
}

func TestTracker_ObserveKeepsLocalMaximum(t *testing.T) {
	tr := NewTracker("s1")
	tr.Stamp()
	tr.Stamp()

	tr.Observe(VectorClock{"s1": 1})

	assert.Equal(t, VectorClock{"s1": 2}, tr.Now())
}

func TestTracker_ConcurrentStamps(t *testing.T) {
	tr := NewTracker("s1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Stamp()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), tr.Now().Get("s1"))
}
