package conflict

import (
	"testing"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

// buildOp constructs a content-addressed operation for tests.
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

func moveOp(t *testing.T, target, session string, clock causality.VectorClock, x, y int64) op.Operation {
	t.Helper()
	return buildOp(t, op.KindMove, target, session, clock, op.MovePayload{Position: op.Position{X: x, Y: y}})
}

func updateOp(t *testing.T, target, session string, clock causality.VectorClock, fields op.Fields) op.Operation {
	t.Helper()
	return buildOp(t, op.KindUpdate, target, session, clock, op.UpdatePayload{Fields: fields})
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

func newTestHistory(t *testing.T, opts ...HistoryOption) *History {
	t.Helper()
	h, err := NewHistory(DefaultMaxEntities, opts...)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	return h
}
