package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
	"github.com/klikkflow/collab/internal/replica"
	"github.com/klikkflow/collab/internal/room"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testOp(t *testing.T, kind op.Kind, target, session string, clock causality.VectorClock, payload op.Payload) op.Operation {
	t.Helper()
	o := op.Operation{
		Kind:          kind,
		TargetID:      target,
		Payload:       payload,
		OriginSession: session,
		Clock:         clock,
	}
	o.ID = op.MustOperationID(o)
	return o
}

func TestJournal_AppendAndReadBack(t *testing.T) {
	j := openTestJournal(t)
	rj := j.ForRoom("room-1")
	ctx := context.Background()

	create := testOp(t, op.KindCreate, "n1", "session-a", causality.VectorClock{"session-a": 1}, op.CreatePayload{
		NodeType: "task",
		Position: op.Position{X: 10, Y: 20},
		Size:     op.Size{Width: 120, Height: 60},
		Fields:   op.Fields{"label": op.String("hello")},
	})
	move := testOp(t, op.KindMove, "n1", "session-a", causality.VectorClock{"session-a": 2}, op.MovePayload{
		Position: op.Position{X: 30, Y: 40},
	})
	require.NoError(t, rj.Append(ctx, create))
	require.NoError(t, rj.Append(ctx, move))

	ops, err := rj.Operations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	// Finalization order, full round-trip of the wire form.
	assert.Equal(t, create.ID, ops[0].ID)
	assert.Equal(t, op.KindCreate, ops[0].Kind)
	payload, ok := ops[0].Payload.(op.CreatePayload)
	require.True(t, ok)
	assert.True(t, op.ValuesEqual(op.String("hello"), payload.Fields["label"]))
	assert.Equal(t, move.ID, ops[1].ID)
	assert.Equal(t, causality.VectorClock{"session-a": 2}, ops[1].Clock)
}

func TestJournal_AppendIsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	rj := j.ForRoom("room-1")
	ctx := context.Background()

	o := testOp(t, op.KindCreate, "n1", "session-a", causality.VectorClock{"session-a": 1}, op.CreatePayload{
		NodeType: "task",
	})
	require.NoError(t, rj.Append(ctx, o))
	require.NoError(t, rj.Append(ctx, o))

	n, err := rj.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_RoomsAreIsolated(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	r1 := j.ForRoom("room-1")
	r2 := j.ForRoom("room-2")

	require.NoError(t, r1.Append(ctx, testOp(t, op.KindCreate, "n1", "session-a", causality.VectorClock{"session-a": 1}, op.CreatePayload{NodeType: "task"})))
	require.NoError(t, r2.Append(ctx, testOp(t, op.KindCreate, "n2", "session-b", causality.VectorClock{"session-b": 1}, op.CreatePayload{NodeType: "task"})))

	ops, err := r1.Operations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "n1", ops[0].TargetID)
}

func TestJournal_Truncate(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	r1 := j.ForRoom("room-1")
	r2 := j.ForRoom("room-2")
	require.NoError(t, r1.Append(ctx, testOp(t, op.KindCreate, "n1", "session-a", causality.VectorClock{"session-a": 1}, op.CreatePayload{NodeType: "task"})))
	require.NoError(t, r2.Append(ctx, testOp(t, op.KindCreate, "n2", "session-b", causality.VectorClock{"session-b": 1}, op.CreatePayload{NodeType: "task"})))

	require.NoError(t, r1.Truncate(ctx))

	n, err := r1.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Other rooms keep their rows.
	n, err = r2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_ReplayRebuildsReplica(t *testing.T) {
	j := openTestJournal(t)
	rj := j.ForRoom("room-1")
	ctx := context.Background()

	ops := []op.Operation{
		testOp(t, op.KindCreate, "n1", "session-a", causality.VectorClock{"session-a": 1}, op.CreatePayload{NodeType: "task"}),
		testOp(t, op.KindCreate, "n2", "session-a", causality.VectorClock{"session-a": 2}, op.CreatePayload{NodeType: "task"}),
		testOp(t, op.KindMove, "n1", "session-a", causality.VectorClock{"session-a": 3}, op.MovePayload{Position: op.Position{X: 5, Y: 5}}),
	}
	for _, o := range ops {
		require.NoError(t, rj.Append(ctx, o))
	}

	rep := replica.New()
	require.NoError(t, rj.Replay(ctx, func(o op.Operation) error {
		_, err := rep.Apply(o)
		return err
	}))

	assert.Equal(t, 2, rep.NodeCount())
	n, _ := rep.Node("n1")
	assert.Equal(t, op.Position{X: 5, Y: 5}, n.Position)
}

func TestJournal_SatisfiesRoomInterface(t *testing.T) {
	var _ room.Journal = (*RoomJournal)(nil)
}

func TestJournal_StampsVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)

	wire, core, err := j.Versions()
	require.NoError(t, err)
	assert.Equal(t, op.WireVersion, wire)
	assert.Equal(t, op.CoreVersion, core)
	require.NoError(t, j.Close())

	// Reopening a journal written by the same wire format succeeds.
	j, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestJournal_RefusesForeignWireVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec(`UPDATE journal_meta SET value = '0.9' WHERE key = 'wire_version'`)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire version")
}
