package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StaysPinned(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now(), "repeated reads do not drift")
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))

	clock.Advance(30 * time.Second)
	assert.Equal(t, time.Unix(1030, 0), clock.Now())

	clock.Advance(time.Minute)
	assert.Equal(t, time.Unix(1090, 0), clock.Now())
}

func TestManualClock_Set(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))

	target := time.Unix(5000, 0)
	clock.Set(target)
	assert.Equal(t, target, clock.Now())
}
