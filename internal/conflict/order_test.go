package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

func TestRankOf_Deterministic(t *testing.T) {
	assert.Equal(t, RankOf("session-a"), RankOf("session-a"))
	assert.NotEqual(t, RankOf("session-a"), RankOf("session-b"))
}

func TestSessionRank_Less_StrictOrder(t *testing.T) {
	a, b := RankOf("session-a"), RankOf("session-b")
	// Distinct ids produce distinct ranks, so exactly one direction holds.
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a.Less(b), b.Less(a))
}

func TestWins_HigherClockSum(t *testing.T) {
	later := moveOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2, "session-b": 1}, 10, 10)
	earlier := moveOp(t, "n1", "session-b", causality.VectorClock{"session-b": 1}, 20, 20)

	assert.True(t, Wins(later, earlier), "larger clock sum is the later writer")
	assert.False(t, Wins(earlier, later))
}

func TestWins_SessionRankBreaksSumTie(t *testing.T) {
	a := moveOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}, 10, 10)
	b := moveOp(t, "n1", "session-b", causality.VectorClock{"session-b": 1}, 20, 20)

	expected := RankOf("session-b").Less(RankOf("session-a"))
	assert.Equal(t, expected, Wins(a, b))
	assert.Equal(t, !expected, Wins(b, a))
}

func TestWins_TotalOverDistinctSessions(t *testing.T) {
	sessions := []string{"alpha", "beta", "gamma", "delta"}
	ops := make([]op.Operation, len(sessions))
	for i, s := range sessions {
		ops[i] = moveOp(t, "n1", s, causality.VectorClock{s: 1}, int64(i), int64(i))
	}

	// Exactly one direction holds for every pair.
	for i := range ops {
		for j := range ops {
			if i == j {
				continue
			}
			assert.NotEqual(t, Wins(ops[i], ops[j]), Wins(ops[j], ops[i]),
				"pair %s/%s must be strictly ordered", sessions[i], sessions[j])
		}
	}
}

func TestWins_IgnoresArrivalOrderInputs(t *testing.T) {
	// Same operations, repeated evaluation: the verdict never flips.
	a := updateOp(t, "n1", "session-a", causality.VectorClock{"session-a": 3}, op.Fields{"label": op.String("x")})
	b := updateOp(t, "n1", "session-b", causality.VectorClock{"session-b": 2}, op.Fields{"label": op.String("y")})

	first := Wins(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Wins(a, b))
	}
	assert.True(t, first, "sum 3 beats sum 2")
}
