package conflict

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/op"
)

// DefaultMinSpacing is the bounding-box spacing (integer canvas units)
// below which two concurrently proposed positions are considered visually
// overlapping.
const DefaultMinSpacing int64 = 48

// Resolver turns an incoming operation plus its detected conflicts into a
// single resolved operation.
//
// Every strategy is a pure total function of the conflicting operations and
// the configured spacing: no replica-local state, no wall-clock reads, no
// arrival-order dependence. Two replicas resolving the same pair always
// produce the same outcome - that is what lets them converge without
// coordination.
type Resolver struct {
	minSpacing int64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMinSpacing sets the overlap spacing for the position strategy.
func WithMinSpacing(spacing int64) ResolverOption {
	return func(r *Resolver) { r.minSpacing = spacing }
}

// NewResolver creates a resolver with the default spacing.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{minSpacing: DefaultMinSpacing}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the resolved operation for an incoming operation and its
// conflicts.
//
// Returns (resolved, manual, err). When manual is true the conflict's
// severity exceeded the automatic threshold and the caller must surface a
// ManualResolutionRequired notice instead of applying anything; none of the
// built-in types trigger this today.
//
// With no conflicts the incoming operation passes through unchanged.
func (r *Resolver) Resolve(incoming op.Operation, conflicts []Conflict) (op.Operation, bool, error) {
	if len(conflicts) == 0 {
		return incoming, false, nil
	}

	for _, c := range conflicts {
		if c.Severity > AutoResolveThreshold {
			return op.Operation{}, true, nil
		}
	}

	// Deterministic processing order regardless of detection order.
	ordered := append([]Conflict(nil), conflicts...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Type != ordered[j].Type {
			return typePrecedence(ordered[i].Type) < typePrecedence(ordered[j].Type)
		}
		return ordered[i].Prior.ID < ordered[j].Prior.ID
	})

	// Deletion dominates: one racing delete decides the whole group.
	if ordered[0].Type == TypeDeletion {
		resolved, err := r.resolveDeletion(incoming, ordered)
		return resolved, false, err
	}

	switch incoming.Kind {
	case op.KindMove:
		resolved, err := r.resolvePosition(incoming, ordered)
		return resolved, false, err
	case op.KindConnect, op.KindDisconnect:
		resolved, err := r.resolveTopology(incoming, ordered)
		return resolved, false, err
	case op.KindUpdate, op.KindCreate:
		resolved, err := r.resolveProperty(incoming, ordered)
		return resolved, false, err
	default:
		return op.Operation{}, false, fmt.Errorf("resolve: no strategy for %s conflicts on kind %s", ordered[0].Type, incoming.Kind)
	}
}

// typePrecedence orders conflict types by dominance for group processing.
func typePrecedence(t Type) int {
	switch t {
	case TypeDeletion:
		return 0
	case TypeTopology:
		return 1
	case TypePosition:
		return 2
	case TypeProperty:
		return 3
	default:
		return 4
	}
}

// resolveDeletion implements deletion dominance: the entity ends up absent
// no matter which side of the race wins.
//
// If the incoming operation is the delete, it is re-derived with the merged
// clock so it causally dominates everything it raced. If the incoming
// operation raced a finalized delete, the resolved outcome is a derived
// delete of that entity - the incoming edit is discarded (reported via the
// conflict list, not applied). Two racing deletes collapse to one: the
// entity is absent either way.
func (r *Resolver) resolveDeletion(incoming op.Operation, conflicts []Conflict) (op.Operation, error) {
	merged, from := mergeGroup(incoming, conflicts)

	if incoming.Kind == op.KindDelete {
		return incoming.Derive(op.DeletePayload{}, merged, from...)
	}

	// Find the finalized delete this operation raced.
	for _, c := range conflicts {
		if c.Prior.Kind == op.KindDelete {
			return c.Prior.Derive(op.DeletePayload{}, merged, from...)
		}
	}
	return op.Operation{}, fmt.Errorf("resolve deletion: no delete in conflict group for %s", incoming.TargetID)
}

// resolvePosition implements the position strategy.
//
// Non-overlapping proposals: winner by the deterministic total order keeps
// its position, the loser's is discarded. Overlapping proposals (within the
// configured minimum spacing on both axes): the resolved position is a
// deterministic blend seeded by the two session ids, so neither party's
// move is silently dropped and repeated races cannot oscillate.
func (r *Resolver) resolvePosition(incoming op.Operation, conflicts []Conflict) (op.Operation, error) {
	merged, from := mergeGroup(incoming, conflicts)

	winner := incoming
	pos, err := movePosition(incoming)
	if err != nil {
		return op.Operation{}, err
	}

	for _, c := range conflicts {
		priorPos, err := movePosition(c.Prior)
		if err != nil {
			return op.Operation{}, err
		}

		blended := overlaps(pos, priorPos, r.minSpacing)
		if blended {
			pos = blendPositions(winner.OriginSession, c.Prior.OriginSession, pos, priorPos, r.minSpacing)
		}
		if Wins(c.Prior, winner) {
			winner = c.Prior
			if !blended {
				pos = priorPos
			}
		}
	}

	return winner.Derive(op.MovePayload{Position: pos}, merged, from...)
}

// resolveTopology favors disconnect: removing an edge is the conservative
// outcome and cannot leave dangling references.
func (r *Resolver) resolveTopology(incoming op.Operation, conflicts []Conflict) (op.Operation, error) {
	merged, from := mergeGroup(incoming, conflicts)

	group := []op.Operation{incoming}
	for _, c := range conflicts {
		group = append(group, c.Prior)
	}

	var disconnect *op.Operation
	winner := incoming
	for i, candidate := range group {
		if candidate.Kind == op.KindDisconnect && disconnect == nil {
			disconnect = &group[i]
		}
		if i > 0 && Wins(candidate, winner) {
			winner = candidate
		}
	}

	if disconnect != nil {
		from2, to2, _ := edgeEndpoints(*disconnect)
		return disconnect.Derive(op.DisconnectPayload{From: from2, To: to2}, merged, from...)
	}

	// Concurrent connects on the same endpoints: total-order winner keeps
	// its edge id, the duplicate is dropped.
	wf, wt, _ := edgeEndpoints(winner)
	return winner.Derive(op.ConnectPayload{From: wf, To: wt}, merged, from...)
}

// resolveProperty implements field-level last-writer-wins.
//
// Identical values converge trivially. Otherwise each contested field takes
// the total-order winner's value; uncontested fields of the incoming
// operation pass through. The losing writes stay visible to the consumer in
// the conflict list attached to the outbound event.
func (r *Resolver) resolveProperty(incoming op.Operation, conflicts []Conflict) (op.Operation, error) {
	merged, from := mergeGroup(incoming, conflicts)

	if incoming.Kind == op.KindCreate {
		// Duplicate concurrent creates: whole-payload winner. Field-level
		// blending of two node births would manufacture a node neither
		// session created.
		winner := incoming
		for _, c := range conflicts {
			if c.Prior.Kind == op.KindCreate && Wins(c.Prior, winner) {
				winner = c.Prior
			}
		}
		payload, ok := winner.Payload.(op.CreatePayload)
		if !ok {
			return op.Operation{}, fmt.Errorf("resolve property: create %s carries %T payload", winner.TargetID, winner.Payload)
		}
		return winner.Derive(payload, merged, from...)
	}

	incomingFields, ok := incoming.Payload.(op.UpdatePayload)
	if !ok {
		return op.Operation{}, fmt.Errorf("resolve property: update %s carries %T payload", incoming.TargetID, incoming.Payload)
	}

	resolved := op.CopyFields(incomingFields.Fields)
	for _, c := range conflicts {
		priorFields := writtenFields(c.Prior)
		for _, name := range c.Fields {
			priorVal, ok := priorFields[name]
			if !ok {
				continue
			}
			mine, present := resolved[name]
			if !present || op.ValuesEqual(mine, priorVal) {
				continue
			}
			if Wins(c.Prior, incoming) {
				resolved[name] = priorVal
			}
		}
	}

	return incoming.Derive(op.UpdatePayload{Fields: resolved}, merged, from...)
}

// mergeGroup returns the merged clock of a conflict group and the sorted
// ids of every operation it reconciles.
func mergeGroup(incoming op.Operation, conflicts []Conflict) (causality.VectorClock, []string) {
	merged := incoming.Clock.Copy()
	from := []string{incoming.ID}
	for _, c := range conflicts {
		merged.Merge(c.Prior.Clock)
		from = append(from, c.Prior.ID)
	}
	sort.Strings(from)
	return merged, from
}

func movePosition(o op.Operation) (op.Position, error) {
	p, ok := o.Payload.(op.MovePayload)
	if !ok {
		return op.Position{}, fmt.Errorf("resolve position: %s operation %s in position conflict", o.Kind, o.TargetID)
	}
	return p.Position, nil
}

// overlaps reports whether two proposed positions sit within the minimum
// spacing on both axes.
func overlaps(a, b op.Position, spacing int64) bool {
	return absDiff(a.X, b.X) < spacing && absDiff(a.Y, b.Y) < spacing
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// blendPositions derives a deterministic position from two overlapping
// proposals, seeded by the (order-normalized) session pair. The seed keeps
// the offset stable across replicas and across repeated races between the
// same two sessions.
func blendPositions(sessionA, sessionB string, a, b op.Position, spacing int64) op.Position {
	s1, s2 := sessionA, sessionB
	if s2 < s1 {
		s1, s2 = s2, s1
	}
	h := sha256.New()
	h.Write([]byte(s1))
	h.Write([]byte{0x00})
	h.Write([]byte(s2))
	seed := h.Sum(nil)

	if spacing <= 0 {
		spacing = DefaultMinSpacing
	}
	dx := int64(seed[0])%spacing + spacing/2
	dy := int64(seed[1])%spacing + spacing/2

	return op.Position{
		X: midpoint(a.X, b.X) + dx,
		Y: midpoint(a.Y, b.Y) + dy,
	}
}

func midpoint(a, b int64) int64 {
	return (a + b) / 2
}
