package replica

import (
	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

// Reason explains why an operation did not mutate the replica.
type Reason string

const (
	// ReasonStale marks an operation whose effect is already superseded by
	// state the replica holds. Idempotent replays land here too.
	ReasonStale Reason = "stale"

	// ReasonTombstoned marks an operation suppressed by a deletion it did
	// not causally observe.
	ReasonTombstoned Reason = "tombstoned"
)

// Outcome reports what Apply did with an operation.
type Outcome struct {
	Applied bool
	Reason  Reason
}

var (
	applied    = Outcome{Applied: true}
	stale      = Outcome{Reason: ReasonStale}
	tombstoned = Outcome{Reason: ReasonTombstoned}
)

// Apply reconciles one finalized operation into the replica.
//
// Apply never errors for stale, duplicate, or deletion-suppressed
// operations; those are reported in the Outcome and leave the state
// untouched. It errors only when the operation references an entity the
// replica has never seen, which signals a client that must resynchronize.
//
// Callers must deliver operations respecting per-origin emission order;
// concurrent operations may arrive in any interleaving.
func (r *Replica) Apply(o op.Operation) (Outcome, error) {
	switch p := o.Payload.(type) {
	case op.CreatePayload:
		return r.applyCreate(o, p), nil
	case op.UpdatePayload:
		return r.applyUpdate(o, p)
	case op.MovePayload:
		return r.applyMove(o)
	case op.DeletePayload:
		return r.applyDelete(o)
	case op.ConnectPayload:
		return r.applyConnect(o, p)
	case op.DisconnectPayload:
		return r.applyDisconnect(o, p), nil
	default:
		return Outcome{}, unknownTarget(o, o.TargetID)
	}
}

func (r *Replica) applyCreate(o op.Operation, p op.CreatePayload) Outcome {
	if tomb, ok := r.nodeTombs[o.TargetID]; ok {
		// Only a create that causally observed the deletion reuses the id.
		if o.Clock.Compare(tomb.clock) != causality.After {
			return tombstoned
		}
		delete(r.nodeTombs, o.TargetID)
	}

	if ns, ok := r.nodes[o.TargetID]; ok {
		if !ns.birth.accepts(o) {
			return stale
		}
	}

	s := newSlot(o)
	ns := &nodeState{
		node: Node{
			ID:       o.TargetID,
			Type:     p.NodeType,
			Position: p.Position,
			Size:     p.Size,
			Fields:   op.CopyFields(p.Fields),
		},
		birth:    s,
		position: s,
		fields:   make(map[string]slot, len(p.Fields)),
	}
	for name := range p.Fields {
		ns.fields[name] = s
	}
	r.nodes[o.TargetID] = ns
	return applied
}

func (r *Replica) applyUpdate(o op.Operation, p op.UpdatePayload) (Outcome, error) {
	if _, ok := r.nodeTombs[o.TargetID]; ok {
		return tombstoned, nil
	}
	ns, ok := r.nodes[o.TargetID]
	if !ok {
		return Outcome{}, unknownTarget(o, o.TargetID)
	}

	s := newSlot(o)
	landed := false
	for _, name := range p.Fields.SortedKeys() {
		if !ns.fields[name].accepts(o) {
			continue
		}
		if ns.node.Fields == nil {
			ns.node.Fields = make(op.Fields, len(p.Fields))
		}
		ns.node.Fields[name] = p.Fields[name]
		ns.fields[name] = s
		landed = true
	}
	if !landed {
		return stale, nil
	}
	return applied, nil
}

func (r *Replica) applyMove(o op.Operation) (Outcome, error) {
	if _, ok := r.nodeTombs[o.TargetID]; ok {
		return tombstoned, nil
	}
	ns, ok := r.nodes[o.TargetID]
	if !ok {
		return Outcome{}, unknownTarget(o, o.TargetID)
	}

	if !ns.position.accepts(o) {
		return stale, nil
	}
	ns.node.Position = o.Payload.(op.MovePayload).Position
	ns.position = newSlot(o)
	return applied, nil
}

func (r *Replica) applyDelete(o op.Operation) (Outcome, error) {
	if tomb, ok := r.nodeTombs[o.TargetID]; ok {
		// Duplicate deletion: fold the clock in so the tombstone dominates
		// everything either delete observed.
		merged := tomb.clock.Copy()
		merged.Merge(o.Clock)
		tomb.clock = merged
		r.nodeTombs[o.TargetID] = tomb
		return stale, nil
	}
	if _, ok := r.nodes[o.TargetID]; !ok {
		return Outcome{}, unknownTarget(o, o.TargetID)
	}

	delete(r.nodes, o.TargetID)
	s := newSlot(o)
	r.nodeTombs[o.TargetID] = s

	// Deleting a node severs its edges in the same step.
	for key, es := range r.edges {
		if es.edge.From != o.TargetID && es.edge.To != o.TargetID {
			continue
		}
		delete(r.edges, key)
		delete(r.edgeIDs, es.edge.ID)
		r.edgeTombs[key] = s
	}
	return applied, nil
}

func (r *Replica) applyConnect(o op.Operation, p op.ConnectPayload) (Outcome, error) {
	for _, endpoint := range []string{p.From, p.To} {
		if _, ok := r.nodes[endpoint]; ok {
			continue
		}
		if _, ok := r.nodeTombs[endpoint]; ok {
			return tombstoned, nil
		}
		return Outcome{}, unknownTarget(o, endpoint)
	}

	key := pairKey(p.From, p.To)
	if tomb, ok := r.edgeTombs[key]; ok {
		// Disconnect wins concurrency: only a connect strictly after the
		// removal re-establishes the pair.
		if o.Clock.Compare(tomb.clock) != causality.After {
			return tombstoned, nil
		}
		delete(r.edgeTombs, key)
	}

	if es, ok := r.edges[key]; ok {
		if !es.written.accepts(o) {
			return stale, nil
		}
		delete(r.edgeIDs, es.edge.ID)
	}

	r.edges[key] = &edgeState{
		edge:    Edge{ID: o.TargetID, From: p.From, To: p.To},
		written: newSlot(o),
	}
	r.edgeIDs[o.TargetID] = key
	return applied, nil
}

func (r *Replica) applyDisconnect(o op.Operation, p op.DisconnectPayload) Outcome {
	key := pairKey(p.From, p.To)

	if es, ok := r.edges[key]; ok {
		switch o.Clock.Compare(es.written.clock) {
		case causality.Before, causality.Equal:
			return stale
		}
		delete(r.edges, key)
		delete(r.edgeIDs, es.edge.ID)
		r.edgeTombs[key] = newSlot(o)
		return applied
	}

	if tomb, ok := r.edgeTombs[key]; ok {
		merged := tomb.clock.Copy()
		merged.Merge(o.Clock)
		tomb.clock = merged
		r.edgeTombs[key] = tomb
		return stale
	}

	// No edge yet: the tombstone still lands so a late concurrent connect
	// for the pair is suppressed.
	r.edgeTombs[key] = newSlot(o)
	return applied
}
