package conflict

import (
	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

// Detector finds conflicts between an incoming operation and the bounded
// history of recently finalized operations for the same entity.
type Detector struct {
	history *History
}

// NewDetector creates a detector over a history window.
func NewDetector(history *History) *Detector {
	return &Detector{history: history}
}

// History exposes the detector-owned window so the pipeline can record
// finalized operations.
func (d *Detector) History() *History {
	return d.history
}

// Detect returns every conflict between the incoming operation and the
// retained history for its target entity.
//
// A history candidate conflicts iff:
//   - it originates from a DIFFERENT session (same-origin operations are
//     inherently ordered by emission), and
//   - the clocks compare as concurrent, and
//   - the payloads overlap (same field, same endpoints, or same entity for
//     a deletion).
//
// An operation causally after all history for the target yields no
// conflicts and proceeds directly.
func (d *Detector) Detect(incoming op.Operation) []Conflict {
	candidates := d.history.ForEntity(incoming.TargetID)
	for _, endpoint := range endpointsOf(incoming) {
		candidates = append(candidates, d.history.ForEntity(endpoint)...)
	}

	var conflicts []Conflict
	seen := make(map[string]bool, len(candidates))
	for _, prior := range candidates {
		if prior.OriginSession == incoming.OriginSession {
			continue
		}
		if prior.ID == incoming.ID || seen[prior.ID] {
			continue
		}
		seen[prior.ID] = true

		if incoming.Clock.Compare(prior.Clock) != causality.Concurrent {
			continue
		}

		if c, ok := classify(incoming, prior); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// classify decides whether a concurrent pair overlaps and with what type.
// Deletion is checked first - it dominates the hierarchy.
func classify(incoming, prior op.Operation) (Conflict, bool) {
	if incoming.Kind == op.KindDelete || prior.Kind == op.KindDelete {
		if touchesSameEntity(incoming, prior) {
			return makeConflict(TypeDeletion, incoming, prior, nil), true
		}
		return Conflict{}, false
	}

	if isEdgeOp(incoming) && isEdgeOp(prior) {
		if sameEndpoints(incoming, prior) {
			return makeConflict(TypeTopology, incoming, prior, nil), true
		}
		return Conflict{}, false
	}

	if incoming.TargetID != prior.TargetID {
		return Conflict{}, false
	}

	if incoming.Kind == op.KindMove && prior.Kind == op.KindMove {
		return makeConflict(TypePosition, incoming, prior, nil), true
	}

	if fields := contestedFields(incoming, prior); len(fields) > 0 {
		return makeConflict(TypeProperty, incoming, prior, fields), true
	}

	return Conflict{}, false
}

func makeConflict(t Type, incoming, prior op.Operation, fields []string) Conflict {
	return Conflict{
		Type:     t,
		Severity: severityFor(t),
		Incoming: incoming,
		Prior:    prior,
		Fields:   fields,
	}
}

// touchesSameEntity reports whether two operations affect the same entity,
// directly or through an edge endpoint. Used only for deletion conflicts.
func touchesSameEntity(a, b op.Operation) bool {
	if a.TargetID == b.TargetID {
		return true
	}
	for _, e := range endpointsOf(a) {
		if e == b.TargetID {
			return true
		}
	}
	for _, e := range endpointsOf(b) {
		if e == a.TargetID {
			return true
		}
	}
	return false
}

func isEdgeOp(o op.Operation) bool {
	return o.Kind == op.KindConnect || o.Kind == op.KindDisconnect
}

func sameEndpoints(a, b op.Operation) bool {
	af, at, aok := edgeEndpoints(a)
	bf, bt, bok := edgeEndpoints(b)
	if !aok || !bok {
		return false
	}
	return af == bf && at == bt
}

func edgeEndpoints(o op.Operation) (from, to string, ok bool) {
	switch p := o.Payload.(type) {
	case op.ConnectPayload:
		return p.From, p.To, true
	case op.DisconnectPayload:
		return p.From, p.To, true
	default:
		return "", "", false
	}
}

// contestedFields returns the field names both operations write.
// Create payloads contend on their initial field map; update payloads on
// their field set.
func contestedFields(a, b op.Operation) []string {
	af := writtenFields(a)
	bf := writtenFields(b)
	if len(af) == 0 || len(bf) == 0 {
		return nil
	}

	var contested []string
	for _, name := range af.SortedKeys() {
		if _, ok := bf[name]; ok {
			contested = append(contested, name)
		}
	}
	return contested
}

func writtenFields(o op.Operation) op.Fields {
	switch p := o.Payload.(type) {
	case op.UpdatePayload:
		return p.Fields
	case op.CreatePayload:
		return p.Fields
	default:
		return nil
	}
}
