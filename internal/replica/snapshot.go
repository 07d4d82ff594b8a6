package replica

import (
	"fmt"

	"github.com/klikkflow/collab/internal/op"
)

// Snapshot returns the canonical JSON encoding of the live graph: nodes and
// edges only, no clocks, no tombstones, no operation ids. Two replicas that
// have converged produce byte-identical snapshots.
func (r *Replica) Snapshot() ([]byte, error) {
	nodes := make(op.Object, len(r.nodes))
	for id, ns := range r.nodes {
		n := op.Object{
			"node_type": op.String(ns.node.Type),
			"position": op.Object{
				"x": op.Int(ns.node.Position.X),
				"y": op.Int(ns.node.Position.Y),
			},
			"size": op.Object{
				"width":  op.Int(ns.node.Size.Width),
				"height": op.Int(ns.node.Size.Height),
			},
		}
		if len(ns.node.Fields) > 0 {
			n["fields"] = ns.node.Fields
		}
		nodes[id] = n
	}

	edges := make(op.Object, len(r.edges))
	for _, es := range r.edges {
		edges[es.edge.ID] = op.Object{
			"from": op.String(es.edge.From),
			"to":   op.String(es.edge.To),
		}
	}

	canonical, err := op.MarshalCanonical(op.Object{
		"nodes": nodes,
		"edges": edges,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return canonical, nil
}

// SnapshotHash returns the content hash of the canonical snapshot.
// Equal hashes mean converged replicas.
func (r *Replica) SnapshotHash() (string, error) {
	canonical, err := r.Snapshot()
	if err != nil {
		return "", err
	}
	return op.SnapshotHash(canonical), nil
}
