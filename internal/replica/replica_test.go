package replica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

func buildOp(t *testing.T, kind op.Kind, target, session string, clock causality.VectorClock, payload op.Payload, deps ...string) op.Operation {
	t.Helper()
	o := op.Operation{
		Kind:          kind,
		TargetID:      target,
		Payload:       payload,
		OriginSession: session,
		Clock:         clock.Copy(),
		DependsOn:     deps,
	}
	o.ID = op.MustOperationID(o)
	return o
}

func createOp(t *testing.T, target, session string, clock causality.VectorClock) op.Operation {
	t.Helper()
	return buildOp(t, op.KindCreate, target, session, clock, op.CreatePayload{
		NodeType: "task",
		Position: op.Position{X: 0, Y: 0},
		Size:     op.Size{Width: 120, Height: 60},
	})
}

func updateOp(t *testing.T, target, session string, clock causality.VectorClock, fields op.Fields) op.Operation {
	t.Helper()
	return buildOp(t, op.KindUpdate, target, session, clock, op.UpdatePayload{Fields: fields})
}

func moveOp(t *testing.T, target, session string, clock causality.VectorClock, x, y int64) op.Operation {
	t.Helper()
	return buildOp(t, op.KindMove, target, session, clock, op.MovePayload{Position: op.Position{X: x, Y: y}})
}

func deleteOp(t *testing.T, target, session string, clock causality.VectorClock) op.Operation {
	t.Helper()
	return buildOp(t, op.KindDelete, target, session, clock, op.DeletePayload{})
}

func connectOp(t *testing.T, edge, session string, clock causality.VectorClock, from, to string) op.Operation {
	t.Helper()
	return buildOp(t, op.KindConnect, edge, session, clock, op.ConnectPayload{From: from, To: to}, from, to)
}

func disconnectOp(t *testing.T, edge, session string, clock causality.VectorClock, from, to string) op.Operation {
	t.Helper()
	return buildOp(t, op.KindDisconnect, edge, session, clock, op.DisconnectPayload{From: from, To: to})
}

func mustApply(t *testing.T, r *Replica, ops ...op.Operation) {
	t.Helper()
	for _, o := range ops {
		_, err := r.Apply(o)
		require.NoError(t, err, "apply %s %s", o.Kind, o.TargetID)
	}
}

func hashOf(t *testing.T, r *Replica) string {
	t.Helper()
	h, err := r.SnapshotHash()
	require.NoError(t, err)
	return h
}

func TestReplica_CreateAndRead(t *testing.T) {
	r := New()

	out, err := r.Apply(createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}))
	require.NoError(t, err)
	assert.True(t, out.Applied)

	n, ok := r.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "task", n.Type)
	assert.Equal(t, 1, r.NodeCount())
}

func TestReplica_UpdateUnknownTarget(t *testing.T) {
	r := New()

	_, err := r.Apply(updateOp(t, "missing", "session-a", causality.VectorClock{"session-a": 1}, op.Fields{
		"label": op.String("x"),
	}))
	require.Error(t, err)

	var ute *UnknownTargetError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "missing", ute.Missing)
}

func TestReplica_ReplayIsIdempotent(t *testing.T) {
	r := New()

	create := createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1})
	update := updateOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}, op.Fields{
		"label": op.String("v1"),
	})
	mustApply(t, r, create, update)
	before := hashOf(t, r)

	// Redelivery of already applied operations changes nothing.
	out, err := r.Apply(update)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, ReasonStale, out.Reason)

	out, err = r.Apply(create)
	require.NoError(t, err)
	assert.False(t, out.Applied)

	assert.Equal(t, before, hashOf(t, r))
}

func TestReplica_StaleMoveSkipped(t *testing.T) {
	r := New()
	mustApply(t, r, createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}))

	later := moveOp(t, "n1", "session-a", causality.VectorClock{"session-a": 3}, 100, 100)
	earlier := moveOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}, 50, 50)
	mustApply(t, r, later)

	out, err := r.Apply(earlier)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, ReasonStale, out.Reason)

	n, _ := r.Node("n1")
	assert.Equal(t, op.Position{X: 100, Y: 100}, n.Position)
}

func TestReplica_ConcurrentFieldWrites_OrderIndependent(t *testing.T) {
	create := createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1})
	fromA := updateOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}, op.Fields{
		"label": op.String("from a"),
	})
	fromB := updateOp(t, "n1", "session-b", causality.VectorClock{"session-a": 1, "session-b": 1}, op.Fields{
		"label": op.String("from b"),
	})

	r1 := New()
	mustApply(t, r1, create, fromA, fromB)

	r2 := New()
	mustApply(t, r2, create, fromB, fromA)

	assert.Equal(t, hashOf(t, r1), hashOf(t, r2), "delivery order must not matter")
}

func TestReplica_ConcurrentFieldWrites_DisjointFieldsBothSurvive(t *testing.T) {
	create := createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1})
	labelWrite := updateOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}, op.Fields{
		"label": op.String("hello"),
	})
	colorWrite := updateOp(t, "n1", "session-b", causality.VectorClock{"session-a": 1, "session-b": 1}, op.Fields{
		"color": op.String("red"),
	})

	r := New()
	mustApply(t, r, create, colorWrite, labelWrite)

	n, _ := r.Node("n1")
	assert.True(t, op.ValuesEqual(op.String("hello"), n.Fields["label"]))
	assert.True(t, op.ValuesEqual(op.String("red"), n.Fields["color"]))
}

func TestReplica_DeletionDominates_EitherOrder(t *testing.T) {
	create := createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1})
	del := deleteOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2})
	edit := updateOp(t, "n1", "session-b", causality.VectorClock{"session-a": 1, "session-b": 1}, op.Fields{
		"label": op.String("racing"),
	})

	r1 := New()
	mustApply(t, r1, create, del)
	out, err := r1.Apply(edit)
	require.NoError(t, err)
	assert.Equal(t, ReasonTombstoned, out.Reason)

	r2 := New()
	mustApply(t, r2, create, edit, del)

	_, ok := r1.Node("n1")
	assert.False(t, ok)
	_, ok = r2.Node("n1")
	assert.False(t, ok)
	assert.Equal(t, hashOf(t, r1), hashOf(t, r2))
}

func TestReplica_CreateAfterDeleteReusesID(t *testing.T) {
	r := New()
	mustApply(t, r,
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		deleteOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}),
	)
	assert.True(t, r.NodeDeleted("n1"))

	// A create that causally observed the deletion is a fresh node.
	out, err := r.Apply(createOp(t, "n1", "session-b", causality.VectorClock{"session-a": 2, "session-b": 1}))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.False(t, r.NodeDeleted("n1"))

	_, ok := r.Node("n1")
	assert.True(t, ok)
}

func TestReplica_ConcurrentCreateSuppressedByTombstone(t *testing.T) {
	r := New()
	mustApply(t, r,
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		deleteOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}),
	)

	out, err := r.Apply(createOp(t, "n1", "session-b", causality.VectorClock{"session-b": 1}))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, ReasonTombstoned, out.Reason)
}

func TestReplica_DeleteCascadesEdges(t *testing.T) {
	r := New()
	mustApply(t, r,
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		createOp(t, "n2", "session-a", causality.VectorClock{"session-a": 2}),
		connectOp(t, "e1", "session-a", causality.VectorClock{"session-a": 3}, "n1", "n2"),
	)
	require.Equal(t, 1, r.EdgeCount())

	mustApply(t, r, deleteOp(t, "n2", "session-a", causality.VectorClock{"session-a": 4}))

	assert.Equal(t, 0, r.EdgeCount())
	_, ok := r.Edge("e1")
	assert.False(t, ok)
}

func TestReplica_DisconnectWins_EitherOrder(t *testing.T) {
	setup := []op.Operation{
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		createOp(t, "n2", "session-a", causality.VectorClock{"session-a": 2}),
		connectOp(t, "e1", "session-a", causality.VectorClock{"session-a": 3}, "n1", "n2"),
	}
	// Concurrent: b disconnects while a re-connects the same pair.
	disc := disconnectOp(t, "e1", "session-b", causality.VectorClock{"session-a": 3, "session-b": 1}, "n1", "n2")
	reconn := connectOp(t, "e2", "session-a", causality.VectorClock{"session-a": 4}, "n1", "n2")

	r1 := New()
	mustApply(t, r1, setup...)
	mustApply(t, r1, disc)
	out, err := r1.Apply(reconn)
	require.NoError(t, err)
	assert.Equal(t, ReasonTombstoned, out.Reason)

	r2 := New()
	mustApply(t, r2, setup...)
	mustApply(t, r2, reconn, disc)

	assert.Equal(t, 0, r1.EdgeCount())
	assert.Equal(t, 0, r2.EdgeCount())
	assert.Equal(t, hashOf(t, r1), hashOf(t, r2))
}

func TestReplica_DuplicateConnects_ConvergeOnWinner(t *testing.T) {
	setup := []op.Operation{
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		createOp(t, "n2", "session-a", causality.VectorClock{"session-a": 2}),
	}
	connA := connectOp(t, "eA", "session-a", causality.VectorClock{"session-a": 3}, "n1", "n2")
	connB := connectOp(t, "eB", "session-b", causality.VectorClock{"session-a": 2, "session-b": 1}, "n1", "n2")

	r1 := New()
	mustApply(t, r1, setup...)
	mustApply(t, r1, connA, connB)

	r2 := New()
	mustApply(t, r2, setup...)
	mustApply(t, r2, connB, connA)

	assert.Equal(t, 1, r1.EdgeCount())
	assert.Equal(t, hashOf(t, r1), hashOf(t, r2))
}

func TestReplica_ConnectToDeletedEndpointSuppressed(t *testing.T) {
	r := New()
	mustApply(t, r,
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		createOp(t, "n2", "session-a", causality.VectorClock{"session-a": 2}),
		deleteOp(t, "n2", "session-a", causality.VectorClock{"session-a": 3}),
	)

	out, err := r.Apply(connectOp(t, "e1", "session-b", causality.VectorClock{"session-a": 2, "session-b": 1}, "n1", "n2"))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, ReasonTombstoned, out.Reason)
}

func TestReplica_SnapshotDeterministic(t *testing.T) {
	r := New()
	mustApply(t, r,
		createOp(t, "n1", "session-a", causality.VectorClock{"session-a": 1}),
		updateOp(t, "n1", "session-a", causality.VectorClock{"session-a": 2}, op.Fields{
			"label": op.String("hello"),
		}),
	)

	first, err := r.Snapshot()
	require.NoError(t, err)
	second, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"label":"hello"`)
}
