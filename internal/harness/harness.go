package harness

import (
	"fmt"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/conflict"
	"github.com/klikkflow/collab/internal/op"
	"github.com/klikkflow/collab/internal/replica"
	"github.com/klikkflow/collab/internal/room"
)

// Result reports one scenario execution.
type Result struct {
	// Snapshots holds the canonical snapshot per delivery order.
	Snapshots [][]byte

	// Hash is the shared snapshot hash after convergence.
	Hash string

	// Resolved counts conflict-resolved finalizations per delivery order.
	Resolved []int
}

// ConvergenceError reports delivery orders that reached different graphs.
type ConvergenceError struct {
	Scenario string
	Hashes   []string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("scenario %s diverged: hashes %v", e.Scenario, e.Hashes)
}

// Execute runs a scenario: it stamps the operations once, finalizes them
// through a fresh pipeline per delivery order, and verifies convergence.
func Execute(s *Scenario) (*Result, error) {
	setupOps, raceOps, err := buildOps(s)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var hashes []string
	for i, order := range s.Deliveries {
		snapshot, resolved, err := runDelivery(setupOps, raceOps, order)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: delivery %d: %w", s.Name, i, err)
		}
		result.Snapshots = append(result.Snapshots, snapshot)
		result.Resolved = append(result.Resolved, resolved)
		hashes = append(hashes, op.SnapshotHash(snapshot))
	}

	for _, h := range hashes[1:] {
		if h != hashes[0] {
			return nil, &ConvergenceError{Scenario: s.Name, Hashes: hashes}
		}
	}
	result.Hash = hashes[0]
	return result, nil
}

// buildOps stamps the scenario's operations.
//
// Setup runs sequentially: every step observes everything before it. Race
// steps observe all of setup, and earlier race steps from their own session,
// but nothing from other sessions; that is what makes them concurrent.
func buildOps(s *Scenario) (setup, race []op.Operation, err error) {
	trackers := make(map[string]*causality.Tracker)
	trackerFor := func(session string) *causality.Tracker {
		tr, ok := trackers[session]
		if !ok {
			tr = causality.NewTracker(session)
			trackers[session] = tr
		}
		return tr
	}

	seen := causality.NewVectorClock()
	for i, step := range s.Setup {
		tr := trackerFor(step.Session)
		tr.Observe(seen)
		o, err := stepOperation(step, tr.Stamp())
		if err != nil {
			return nil, nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		setup = append(setup, o)
		seen.Merge(o.Clock)
	}

	for i, step := range s.Race {
		tr := trackerFor(step.Session)
		tr.Observe(seen) // setup only; racing sessions do not see each other
		o, err := stepOperation(step, tr.Stamp())
		if err != nil {
			return nil, nil, fmt.Errorf("race[%d]: %w", i, err)
		}
		race = append(race, o)
	}
	return setup, race, nil
}

// stepOperation converts a scenario step plus a stamped clock into a
// content-addressed operation.
func stepOperation(s Step, clock causality.VectorClock) (op.Operation, error) {
	o := op.Operation{
		Kind:          op.Kind(s.Op),
		TargetID:      s.Target,
		OriginSession: s.Session,
		Clock:         clock,
	}

	switch o.Kind {
	case op.KindCreate:
		fields, err := stepFields(s.Fields)
		if err != nil {
			return op.Operation{}, err
		}
		p := op.CreatePayload{NodeType: s.NodeType, Fields: fields}
		if s.Position != nil {
			p.Position = op.Position{X: s.Position.X, Y: s.Position.Y}
		}
		if s.Size != nil {
			p.Size = op.Size{Width: s.Size.Width, Height: s.Size.Height}
		}
		o.Payload = p
	case op.KindUpdate:
		fields, err := stepFields(s.Fields)
		if err != nil {
			return op.Operation{}, err
		}
		o.Payload = op.UpdatePayload{Fields: fields}
	case op.KindMove:
		o.Payload = op.MovePayload{Position: op.Position{X: s.Position.X, Y: s.Position.Y}}
	case op.KindDelete:
		o.Payload = op.DeletePayload{}
	case op.KindConnect:
		o.Payload = op.ConnectPayload{From: s.From, To: s.To}
		o.DependsOn = []string{s.From, s.To}
	case op.KindDisconnect:
		o.Payload = op.DisconnectPayload{From: s.From, To: s.To}
	}

	id, err := op.OperationID(o)
	if err != nil {
		return op.Operation{}, err
	}
	o.ID = id
	return o, nil
}

func stepFields(raw map[string]any) (op.Fields, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	fields := make(op.Fields, len(raw))
	for name, v := range raw {
		val, err := op.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = val
	}
	return fields, nil
}

// runDelivery finalizes setup then one delivery order through a fresh
// pipeline. Redelivered operations finalize as stale no-ops and count
// nothing.
func runDelivery(setup, race []op.Operation, order []int) (snapshot []byte, resolved int, err error) {
	history, err := conflict.NewHistory(conflict.DefaultMaxEntities)
	if err != nil {
		return nil, 0, err
	}
	pipeline := room.NewPipeline(
		conflict.NewDetector(history),
		conflict.NewResolver(),
		replica.New(),
	)

	for _, o := range setup {
		if _, err := pipeline.Submit(o); err != nil {
			return nil, 0, fmt.Errorf("setup op %s: %w", o.ID, err)
		}
	}
	for _, idx := range order {
		res, err := pipeline.Submit(race[idx])
		if err != nil {
			return nil, 0, fmt.Errorf("race op %s: %w", race[idx].ID, err)
		}
		if len(res.Conflicts) > 0 {
			resolved++
		}
	}

	snapshot, err = pipeline.Replica().Snapshot()
	if err != nil {
		return nil, 0, err
	}
	return snapshot, resolved, nil
}
