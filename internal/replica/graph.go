// Package replica maintains one participant's materialized view of the
// workflow graph and applies finalized operations to it.
//
// Application is idempotent and order independent across concurrent
// operations. Every mutable slot (a node's birth, its position, each of its
// fields, an edge between two endpoints) remembers the clock of the operation
// that last wrote it. An operation lands on a slot only when its clock is
// causally after the slot's, or when the two are concurrent and the operation
// wins the deterministic total order. Replaying an operation, or delivering
// two concurrent operations in either order, therefore produces the same
// state on every replica.
//
// Deletions leave tombstones. A tombstoned node or edge suppresses every
// concurrent or causally earlier write to it; only an operation strictly
// after the deletion can reuse the identity.
package replica

import (
	"fmt"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/conflict"
	"github.com/klikkflow/collab/internal/op"
)

// Node is the materialized state of a workflow node.
type Node struct {
	ID       string
	Type     string
	Position op.Position
	Size     op.Size
	Fields   op.Fields
}

// Edge is the materialized state of a connection between two nodes.
type Edge struct {
	ID   string
	From string
	To   string
}

// slot is a causal register guarding one mutable piece of state.
type slot struct {
	clock causality.VectorClock
	owner op.Operation
}

// accepts reports whether an operation may overwrite the slot.
func (s slot) accepts(o op.Operation) bool {
	if len(s.clock) == 0 {
		return true
	}
	switch o.Clock.Compare(s.clock) {
	case causality.After:
		return true
	case causality.Before, causality.Equal:
		return false
	default:
		return conflict.Wins(o, s.owner)
	}
}

func newSlot(o op.Operation) slot {
	return slot{clock: o.Clock.Copy(), owner: o}
}

type nodeState struct {
	node     Node
	birth    slot
	position slot
	fields   map[string]slot
}

type edgeState struct {
	edge    Edge
	written slot
}

// pairKey identifies a directed endpoint pair. Duplicate concurrent connects
// between the same endpoints contend on the pair, not on their edge ids.
func pairKey(from, to string) string {
	return from + "\x00" + to
}

// Replica is one participant's view of the graph.
// Not safe for concurrent use; the owning pipeline serializes access.
type Replica struct {
	nodes     map[string]*nodeState
	edges     map[string]*edgeState // keyed by pairKey
	edgeIDs   map[string]string     // edge id -> pairKey
	nodeTombs map[string]slot
	edgeTombs map[string]slot // keyed by pairKey
}

// New creates an empty replica.
func New() *Replica {
	return &Replica{
		nodes:     make(map[string]*nodeState),
		edges:     make(map[string]*edgeState),
		edgeIDs:   make(map[string]string),
		nodeTombs: make(map[string]slot),
		edgeTombs: make(map[string]slot),
	}
}

// Node returns the materialized node for an id.
func (r *Replica) Node(id string) (Node, bool) {
	ns, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	n := ns.node
	n.Fields = op.CopyFields(ns.node.Fields)
	return n, true
}

// Edge returns the materialized edge for an id.
func (r *Replica) Edge(id string) (Edge, bool) {
	key, ok := r.edgeIDs[id]
	if !ok {
		return Edge{}, false
	}
	es, ok := r.edges[key]
	if !ok || es.edge.ID != id {
		return Edge{}, false
	}
	return es.edge, true
}

// NodeCount returns the number of live nodes.
func (r *Replica) NodeCount() int { return len(r.nodes) }

// EdgeCount returns the number of live edges.
func (r *Replica) EdgeCount() int { return len(r.edges) }

// NodeDeleted reports whether a node id carries a tombstone.
func (r *Replica) NodeDeleted(id string) bool {
	_, ok := r.nodeTombs[id]
	return ok
}

// UnknownTargetError reports an operation whose target (or endpoint) is not
// present in the replica. The pipeline rejects the operation and the client
// is expected to resynchronize.
type UnknownTargetError struct {
	Kind     op.Kind
	TargetID string
	Missing  string
}

func (e *UnknownTargetError) Error() string {
	if e.Missing != e.TargetID {
		return fmt.Sprintf("%s %s: unknown entity %s", e.Kind, e.TargetID, e.Missing)
	}
	return fmt.Sprintf("%s %s: unknown target", e.Kind, e.TargetID)
}

func unknownTarget(o op.Operation, missing string) error {
	return &UnknownTargetError{Kind: o.Kind, TargetID: o.TargetID, Missing: missing}
}
