package room

import (
	"errors"

	"github.com/klikkflow/collab/internal/conflict"
	"github.com/klikkflow/collab/internal/op"
	"github.com/klikkflow/collab/internal/replica"
)

// Result reports what the pipeline did with one submitted operation.
type Result struct {
	// Incoming is the operation as submitted.
	Incoming op.Operation

	// Resolved is the finalized operation. Equal to Incoming when no
	// conflicts were detected.
	Resolved op.Operation

	// Conflicts lists the detected races, losing writes included.
	Conflicts []conflict.Conflict

	// Outcome is the replica's application result for Resolved.
	Outcome replica.Outcome

	// Manual is set when resolution was refused by severity. Nothing was
	// applied and Resolved is zero.
	Manual bool
}

// Stale reports a redelivered submission whose effect the replica already
// reflects. Nothing was resolved, applied, journaled, or announced.
func (r Result) Stale() bool {
	return !r.Manual &&
		len(r.Conflicts) == 0 &&
		!r.Outcome.Applied &&
		r.Outcome.Reason == replica.ReasonStale
}

// Pipeline finalizes operations: validate, detect, resolve, reconcile.
//
// The pipeline is synchronous and single-threaded by contract; the Room's
// Run loop is its only production caller. Given the same starting state and
// the same submissions it produces the same results, which is what the
// replay tooling and the convergence harness rely on.
type Pipeline struct {
	detector *conflict.Detector
	resolver *conflict.Resolver
	replica  *replica.Replica
}

// NewPipeline assembles a pipeline from its stages.
func NewPipeline(d *conflict.Detector, r *conflict.Resolver, rep *replica.Replica) *Pipeline {
	return &Pipeline{detector: d, resolver: r, replica: rep}
}

// Replica exposes the authoritative graph view.
func (p *Pipeline) Replica() *replica.Replica { return p.replica }

// Submit finalizes one operation.
//
// Returned errors are always *PipelineError. A malformed or unknown-target
// submission is an error. A redelivered operation whose effect is already
// reflected is NOT an error: at-least-once delivery makes redelivery normal,
// so it finalizes as a no-op Result (see Result.Stale).
func (p *Pipeline) Submit(o op.Operation) (Result, error) {
	if err := o.Validate(); err != nil {
		return Result{}, malformedError(o.OriginSession, o.ID, err.Error())
	}
	want, err := op.OperationID(o)
	if err != nil {
		return Result{}, malformedError(o.OriginSession, o.ID, err.Error())
	}
	if o.ID != want {
		return Result{}, malformedError(o.OriginSession, o.ID, "operation id does not match content")
	}

	conflicts := p.detector.Detect(o)

	resolved, manual, err := p.resolver.Resolve(o, conflicts)
	if err != nil {
		return Result{}, malformedError(o.OriginSession, o.ID, err.Error())
	}
	if manual {
		return Result{Incoming: o, Conflicts: conflicts, Manual: true}, nil
	}

	outcome, err := p.replica.Apply(resolved)
	if err != nil {
		var ute *replica.UnknownTargetError
		if errors.As(err, &ute) {
			return Result{}, unknownTargetError(o.OriginSession, o.ID, ute.Missing)
		}
		return Result{}, malformedError(o.OriginSession, o.ID, err.Error())
	}

	// A submission whose effect is already reflected, with nothing to
	// resolve, is a redelivery. It finalizes as a no-op; the original
	// delivery already recorded it, so the window is left alone.
	if len(conflicts) == 0 && !outcome.Applied && outcome.Reason == replica.ReasonStale {
		return Result{Incoming: o, Resolved: resolved, Outcome: outcome}, nil
	}

	p.record(o, resolved, outcome)

	return Result{
		Incoming:  o,
		Resolved:  resolved,
		Conflicts: conflicts,
		Outcome:   outcome,
	}, nil
}

// record feeds the finalized operation back into the detection window.
// A finalized deletion clears the entity's window first; everything that
// raced the delete has already lost, so only the delete itself remains
// relevant to future detection.
func (p *Pipeline) record(incoming, resolved op.Operation, outcome replica.Outcome) {
	h := p.detector.History()

	if resolved.Kind == op.KindDelete && outcome.Applied {
		h.Forget(resolved.TargetID)
		h.Record(resolved)
		return
	}

	h.Record(incoming)
	if resolved.ID != incoming.ID {
		h.Record(resolved)
	}
}
