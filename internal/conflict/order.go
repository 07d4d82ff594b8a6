package conflict

import (
	"bytes"
	"crypto/sha256"

	"github.com/klikkflow/collab/internal/op"
)

// sessionRankDomain versions the rank derivation so it can migrate without
// colliding with operation hashing.
const sessionRankDomain = "collab/session-rank/v1"

// SessionRank is the stable, replica-independent priority of a session,
// derived by hashing the session id. Ranks give every pair of sessions a
// strict order without any shared configuration.
type SessionRank [sha256.Size]byte

// RankOf derives the rank for a session id.
func RankOf(session string) SessionRank {
	h := sha256.New()
	h.Write([]byte(sessionRankDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(session))
	var rank SessionRank
	copy(rank[:], h.Sum(nil))
	return rank
}

// Less orders ranks lexicographically.
func (r SessionRank) Less(other SessionRank) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// Wins reports whether operation a beats operation b under the deterministic
// last-writer-wins total order:
//
//  1. higher clock sum wins (more observed history at emission = later writer)
//  2. higher session rank wins
//  3. lexically greater session id wins (ranks collide only if ids do)
//
// The order is total over distinct operations from distinct sessions, is the
// same on every replica, and never consults wall-clock time or arrival order.
func Wins(a, b op.Operation) bool {
	aSum, bSum := a.Clock.Sum(), b.Clock.Sum()
	if aSum != bSum {
		return aSum > bSum
	}

	aRank, bRank := RankOf(a.OriginSession), RankOf(b.OriginSession)
	if aRank != bRank {
		return bRank.Less(aRank)
	}

	return a.OriginSession > b.OriginSession
}
